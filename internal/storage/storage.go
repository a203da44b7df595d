package storage

// Archive keeps original image bytes addressed by their fingerprint.
type Archive interface {
	Save(fingerprint string, data []byte) (string, error)
	Exists(fingerprint string) (bool, error)
}
