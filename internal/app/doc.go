// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the injection lifecycle: wait for the
// GlosSI companion, bind to the Steam client, install the compiled-in
// tweaks and revert them when the companion goes away. It is decoupled
// from any specific entrypoint like a CLI.
package app
