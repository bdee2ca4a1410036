/*
Package security seals credentials that agrilo keeps on disk.

The access token is a bearer credential: anyone who can read it can act as the
user until it expires. When a passphrase is configured (AGRILO_TOKEN_KEY), the
BoltDB store seals the token with AES-256-GCM before writing it, using a key
derived from the passphrase with SHA-256. The nonce is prepended to each
ciphertext, so sealing the same token twice yields different bytes.

	sealer, err := security.NewSealerFromPassphrase(os.Getenv("AGRILO_TOKEN_KEY"))
	if err != nil {
		return err
	}
	store, err := storage.NewBoltStore(dataDir, storage.WithSealer(sealer))
*/
package security
