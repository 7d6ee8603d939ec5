// Package codec defines the contract connection workers use to turn raw socket
// reads into messages, and a reference decoder that splits a stream into lines.
package codec

// Decoder turns raw socket reads into discrete messages.
//
// Consume is called once per completed read with the filled region of the read
// buffer and the error the read returned. Implementations keep whatever partial
// state they need between calls, must not block, and must not retain p after
// returning. Decoded messages are delivered on the channel the decoder was built
// with, in the order they were found.
type Decoder interface {
	Consume(p []byte, err error)
}

// Factory builds a decoder bound to the channel its messages are delivered on.
// A manager calls it once per connection.
type Factory[M any] func(out chan<- M) Decoder
