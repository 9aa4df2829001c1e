package domain

import "time"

// Command describes one external program invocation.
type Command struct {
	Name string
	Args []string

	// Timeout is the hard upper bound on runtime; zero means unbounded.
	Timeout time.Duration

	// OnLine receives every line of combined stdout/stderr.
	OnLine func(line string)
}
