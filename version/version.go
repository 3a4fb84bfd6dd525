package version

// Version is the binary version, overridden at build time with
// -ldflags "-X github.com/panam-dodia/NeuralLense/version.Version=...".
var Version string = "0.0.0"
