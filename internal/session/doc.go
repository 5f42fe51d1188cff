// Package session runs multi-agent conversations over one shared remote thread.
//
// # Overview
//
// A Session holds an ordered roster of participants, an append-only transcript
// and a status machine. Each turn picks the next speaker, hands it the previous
// message (or the topic when the transcript is empty) and appends whatever the
// responder said.
//
//	s := session.New(roster, session.WithTopic("Plan the release"))
//	if err := s.Start(ctx, 4); err != nil {
//		return err
//	}
//	fmt.Println(s.Hash())
//
// # Turn Taking
//
// The speaker is the first roster member whose id differs from the sender of
// the last transcript entry. With an empty transcript the first member speaks.
// A delegated turn may be answered by someone outside the roster; the
// transcript records the responder, not the chosen speaker.
//
// # Status
//
//	pending -> running -> completed -> running -> ...
//	                   \-> error (terminal)
//
// Start (and its alias Resume) runs a pending or completed session in chunks,
// keeping its transcript and thread id. Any call made while the session is
// running fails with ErrAlreadyRunning and changes nothing; after an error
// every call fails with ErrSessionFailed.
//
// # Integrity Hash
//
// After every append the session stores the hex SHA-256 of the JSON encoding
// of the whole transcript. Readers take the hash and transcript under the same
// lock, so Snapshot never pairs a hash with a different transcript.
//
// # Live Events
//
// WithBroadcaster publishes an Event for every appended message and status
// change. Subscribers receive them in transcript order; a subscriber that
// falls 64 events behind loses events rather than stalling the session.
package session
