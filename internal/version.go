package internal

// Version of virtualtourist, overridden at build time via -ldflags
var Version = "0.3.0"
