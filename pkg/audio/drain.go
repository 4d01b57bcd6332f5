package audio

// Drain reads from ch until it is closed, discarding all values. Use it to
// release a producer goroutine when the rest of a stream is no longer needed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
