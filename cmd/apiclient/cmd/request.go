package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-api-client/apierror"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/pipeline"
	"github.com/spf13/cobra"
)

var getFlags struct {
	tags    []string
	noCache bool
	repeat  int
	stats   bool
	ttl     time.Duration
}

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "GET a path and print the response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			a.session(ctx)
			req := &pipeline.Request{
				Method:    http.MethodGet,
				Path:      args[0],
				CacheTags: getFlags.tags,
				CacheTTL:  getFlags.ttl,
				SkipCache: getFlags.noCache,
			}
			for i := 0; i < max(getFlags.repeat, 1); i++ {
				if err := a.do(ctx, req); err != nil {
					return err
				}
			}
			if getFlags.stats {
				printStats(a)
			}
			return nil
		})
	},
}

var sendFlags struct {
	invalidate []string
}

var sendCmd = &cobra.Command{
	Use:   "send <method> <path> [json|-]",
	Short: "Send a JSON body with POST, PUT, PATCH or DELETE",
	Long: `Send a write request. The body is the third argument, or stdin when it is "-".
Cached reads tagged with any --invalidate tag are dropped when the write succeeds.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := strings.ToUpper(args[0])
		switch method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return fmt.Errorf("unsupported method %q", args[0])
		}
		body, err := readBody(cmd.InOrStdin(), args[2:])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			a.session(ctx)
			return a.do(ctx, &pipeline.Request{
				Method:         method,
				Path:           args[1],
				Body:           body,
				InvalidateTags: sendFlags.invalidate,
			})
		})
	},
}

func init() {
	getCmd.Flags().StringSliceVar(&getFlags.tags, "tag", nil, "cache tags for the response")
	getCmd.Flags().BoolVar(&getFlags.noCache, "no-cache", false, "bypass the response cache")
	getCmd.Flags().IntVar(&getFlags.repeat, "repeat", 1, "send the request n times")
	getCmd.Flags().BoolVar(&getFlags.stats, "stats", false, "print cache statistics afterwards")
	getCmd.Flags().DurationVar(&getFlags.ttl, "ttl", 0, "cache lifetime (default from config)")
	sendCmd.Flags().StringSliceVar(&sendFlags.invalidate, "invalidate", nil, "cache tags to drop on success")
	rootCmd.AddCommand(getCmd, sendCmd)
}

func (a *app) do(ctx context.Context, req *pipeline.Request) error {
	start := time.Now()
	res, err := a.client.Do(ctx, req)
	if err != nil {
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) && apiErr.Status > 0 {
			fmt.Printf("%s %s %s\n", colourMethod(req.Method), req.Path, colourStatus(apiErr.Status))
		}
		if apierror.IsAuth(err) {
			return fmt.Errorf("%w (sign in again with: apiclient login)", err)
		}
		return err
	}

	source := fmt.Sprintf("%s%s%s", Gray, time.Since(start).Round(time.Millisecond), ResetColor)
	if res.Cached {
		source = fmt.Sprintf("%scached%s", Cyan, ResetColor)
	}
	fmt.Printf("%s %s %s %s\n", colourMethod(req.Method), req.Path, colourStatus(res.Status), source)
	printBody(os.Stdout, res.Body)
	return nil
}

func printBody(w io.Writer, body []byte) {
	if len(body) == 0 {
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		out.Reset()
		out.Write(body)
	}
	out.WriteByte('\n')
	_, _ = out.WriteTo(w)
}

func readBody(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	body := []byte(args[0])
	if args[0] == "-" {
		var err error
		if body, err = io.ReadAll(stdin); err != nil {
			return nil, err
		}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return body, nil
}

func printStats(a *app) {
	s := a.cache.Stats()
	fmt.Println()
	fmt.Printf("%sCache%s\n", Magenta, ResetColor)
	fmt.Printf("  Entries:   %d\n", s.Entries)
	fmt.Printf("  Memory:    %d bytes\n", s.MemoryBytes)
	fmt.Printf("  Hits:      %d\n", s.Hits)
	fmt.Printf("  Misses:    %d\n", s.Misses)
	fmt.Printf("  Evictions: %d\n", s.Evictions)
	fmt.Printf("  Hit rate:  %.1f%%\n", s.HitRate*100)
}
