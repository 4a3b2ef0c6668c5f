package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// countdown redraws "<prefix> (Ns left)" on one terminal line until Stop.
//
// A countdown is single-use: Start at most once, then Stop. Stop is safe to
// call more than once.
type countdown struct {
	out      io.Writer
	prefix   string
	deadline time.Time
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newCountdown(out io.Writer, prefix string, d time.Duration) *countdown {
	return &countdown{
		out:      out,
		prefix:   prefix,
		deadline: time.Now().Add(d),
		interval: progressUpdateInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *countdown) Start() {
	c.draw()
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.draw()
			}
		}
	}()
}

// remaining rounds to the nearest second, never below zero.
func (c *countdown) remaining() int {
	left := time.Until(c.deadline)
	if left <= 0 {
		return 0
	}
	return int(left.Seconds() + 0.5)
}

func (c *countdown) draw() {
	fmt.Fprintf(c.out, "\r%s (%ds left)   ", c.prefix, c.remaining())
}

// Stop ends the redraw loop and clears the line.
func (c *countdown) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
		fmt.Fprint(c.out, clearLineSequence)
	})
}
