// Package commands defines the letterctl device CLI.
//
// Commands
//
//   - init        Create the device key pair
//   - register    Create an identity and publish the device public key
//   - invite      Issue a one-time invite link
//   - consume     Send a pairing request through someone's invite link
//   - requests    List pending pairing requests
//   - accept      Accept a pairing request
//   - reject      Reject a pairing request
//   - friends     List pairings
//   - unfriend    Remove a pairing
//   - send        Seal and send a letter
//   - inbox       List delivered letters
//   - open        Open a delivered letter
//   - delete      Delete a letter
//   - heartbeat   Record activity, postponing inactivity letters
//   - reset       Delete the device key and local state
//   - demo        Run a full exchange against in-memory backends
//
// # Implementation
//
// Commands talk to the relay's backends in-process, configured through the
// same environment as the relay server. The private key lives in a
// passphrase protected file under --home and never leaves the device.
package commands
