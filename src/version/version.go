package version

// Version is the build version, overridden at link time with
// -ldflags "-X shotty/src/version.Version=v1.2.3".
var Version = "dev"
