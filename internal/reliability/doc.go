// Package reliability provides the reconnect policy for the realtime
// session client.
//
// A policy is pure: given a consecutive-failure count it answers whether
// another attempt should be made and how long to wait first. The connection
// manager owns the attempt counter and the actual waiting; the policy has no
// side effects, which keeps it unit-testable in isolation from the
// transport.
package reliability
