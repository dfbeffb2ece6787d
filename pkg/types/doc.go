// Package types defines the messages exchanged between the client, the master
// and the slaves, and the registry views shared by master components.
package types
