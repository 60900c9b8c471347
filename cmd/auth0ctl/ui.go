package main

import "github.com/fatih/color"

// ui colors status words. Color is disabled automatically when output is not a terminal.
type ui struct {
	ok   func(a ...any) string
	warn func(a ...any) string
	fail func(a ...any) string
	dim  func(a ...any) string
}

func newUI() *ui {
	return &ui{
		ok:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		warn: color.New(color.FgYellow).SprintFunc(),
		fail: color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:  color.New(color.FgHiBlack).SprintFunc(),
	}
}
