// Package ui provides colored terminal output helpers for the CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stepColor    = color.New(color.FgBlue, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgWhite)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// center left-pads text to sit in the middle of width. Text wider than width
// is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}

// Header prints a banner with the given title.
func Header(title string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Println(line)
	headerColor.Println(center(title, headerWidth))
	headerColor.Println(line)
}

// Step prints a numbered progress step.
func Step(current, total int, msg string) {
	stepColor.Printf("[%d/%d] ", current, total)
	fmt.Println(msg)
}

// Success prints a success message.
func Success(msg string) {
	successColor.Printf("✓ %s\n", msg)
}

// Info prints an informational message.
func Info(msg string) {
	infoColor.Printf("  %s\n", msg)
}

// Warning prints a warning message.
func Warning(msg string) {
	warningColor.Printf("⚠ %s\n", msg)
}

// Error prints an error message.
func Error(msg string) {
	errorColor.Printf("✗ %s\n", msg)
}

// BlueText prints msg in blue without any prefix.
func BlueText(msg string) {
	stepColor.Println(msg)
}

// YellowText prints msg in yellow without any prefix.
func YellowText(msg string) {
	warningColor.Println(msg)
}
