package metastates

// Version is overridden at build time with -ldflags "-X github.com/dmitrymomot/metastates.Version=...".
var Version = "dev"
