package main

import "time"

// Flag structs decouple cobra from logic for testing.

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// APIFlags configure the connection to a running daemon.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
