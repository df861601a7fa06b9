// Package secure keeps secret values encrypted in memory while a transfer
// holds them.
//
// A value fetched from the source store is sealed into a memguard enclave
// (XSalsa20Poly1305, mlocked where the platform allows it) and only opened
// for the moment the destination write request is built.
//
// # Usage
//
//	sealed := secure.Seal(rec.Value())
//	defer sealed.Destroy()
//
//	err := sealed.Reveal(func(value string) error {
//	    return write(value)
//	})
//
// It does NOT protect against attackers with access to the running process,
// and the string handed to Reveal callbacks lives in ordinary Go memory.
package secure
