// Package cli provides the Courial command-line client.
//
// It wires configuration, the local database, the backend client, the
// session store and the bootstrap orchestrator behind a small set of cobra
// commands:
//
//   - bootstrap  run one foreground pass and print the route and session
//   - onboard    mark onboarding complete
//   - verify     sign in with a one-time code sent by SMS
//   - status     check the backend and print the stored session
//   - logout     sign out and clear the stored session
//   - run        stay in the foreground and print redirects until interrupted
//
// The code prompt in verify puts the terminal in raw mode and drives an
// otp.Entry one key at a time.
package cli
