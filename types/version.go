package types

// Version is the canonical chartd version.
// The CLI, the HTTP server and published render events all report this value.
const Version = "0.3.0"
