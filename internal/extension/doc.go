// Package extension covers both ends of the host/extension pipe.
//
// On the host side, Child starts an extension process and satisfies
// transport.Process. On the extension side, Receiver reads the frames a
// transport writes to stdin, resolves each payload from its locator,
// verifies it and answers with one Ack line on stdout.
package extension
