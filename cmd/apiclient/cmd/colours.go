package cmd

import (
	"fmt"
	"net/http"
)

const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m" // Bright black, often appears as gray

	GreenInverse  = "\033[7;32m"
	YellowInverse = "\033[7;33m"
	RedInverse    = "\033[7;31m"

	ResetColor = "\033[0m" // Reset to default color
)

var methodColors = map[string]string{
	"GET":    Green,
	"POST":   Blue,
	"PUT":    Cyan,
	"DELETE": Yellow,
	"PATCH":  Magenta,
}

func colourMethod(method string) string {
	if noColor {
		return method
	}
	c, ok := methodColors[method]
	if !ok {
		c = Gray
	}
	return c + method + ResetColor
}

func colourStatus(status int) string {
	if noColor {
		return fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	c := GreenInverse
	switch {
	case status >= 500:
		c = RedInverse
	case status >= 400:
		c = YellowInverse
	}
	return fmt.Sprintf("%s %d %s %s", c, status, http.StatusText(status), ResetColor)
}
