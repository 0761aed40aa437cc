package auth

import (
	"crypto/hmac"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

// Hash errors.
var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrInvalidHash is returned when a stored hash cannot be parsed.
	ErrInvalidHash = errors.New("invalid or unrecognised password hash")
)

// PasswordHasher hashes new passwords and verifies candidates against any
// hash this application has ever stored.
type PasswordHasher interface {
	// Hash produces a salted hash of password in the current scheme.
	Hash(password string) (string, error)

	// Verify checks password against encodedHash. It returns (false, nil)
	// on mismatch and an error only when the hash itself is malformed.
	Verify(password, encodedHash string) (bool, error)

	// NeedsRehash reports whether encodedHash should be replaced by a
	// fresh Hash on the next successful login.
	NeedsRehash(encodedHash string) bool
}

// Argon2Params are the argon2id cost parameters for new hashes. Verification
// always uses the parameters encoded in the stored hash instead.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params follows OWASP recommendations for argon2id on modest
// hardware: memory=64MB, iterations=3, parallelism=4.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    3,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
		SaltLen: 16,
	}
}

// scheme identifies the algorithm family of a stored hash.
type scheme int

const (
	schemeUnknown scheme = iota
	schemeArgon2id
	schemeBcrypt
	schemeWerkzeug
)

// Hasher implements PasswordHasher. New hashes are argon2id PHC strings;
// bcrypt hashes and the werkzeug formats written by the previous
// deployment ("pbkdf2:sha256:<iter>$salt$hex", "scrypt:n:r:p$salt$hex",
// "sha256$salt$hex") still verify.
type Hasher struct {
	params Argon2Params
}

// NewHasher creates a Hasher with DefaultArgon2Params.
func NewHasher() *Hasher {
	return NewHasherWithParams(DefaultArgon2Params())
}

// NewHasherWithParams creates a Hasher with custom argon2id parameters.
func NewHasherWithParams(p Argon2Params) *Hasher {
	return &Hasher{params: p}
}

// Hash creates an argon2id hash of the given password in the format
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against a stored hash of any supported scheme.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch detectScheme(encodedHash) {
	case schemeArgon2id:
		return verifyArgon2id(password, encodedHash)
	case schemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return true, nil
	case schemeWerkzeug:
		return verifyWerkzeug(password, encodedHash)
	default:
		return false, ErrInvalidHash
	}
}

// NeedsRehash returns true for any non-argon2id hash and for argon2id hashes
// made with weaker parameters than the current ones.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if detectScheme(encodedHash) != schemeArgon2id {
		return true
	}
	p, _, key, err := parseArgon2id(encodedHash)
	if err != nil {
		return true
	}
	return p.Memory < h.params.Memory ||
		p.Time < h.params.Time ||
		p.Threads < h.params.Threads ||
		uint32(len(key)) < h.params.KeyLen
}

func detectScheme(encodedHash string) scheme {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return schemeArgon2id
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return schemeBcrypt
	case strings.Count(encodedHash, "$") == 2 && !strings.HasPrefix(encodedHash, "$"):
		return schemeWerkzeug
	default:
		return schemeUnknown
	}
}

// --- argon2id ---

func parseArgon2id(encodedHash string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrInvalidHash
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &threads); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if threads == 0 || threads > 255 {
		return p, nil, nil, fmt.Errorf("%w: threads value %d out of range", ErrInvalidHash, threads)
	}
	p.Threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}

func verifyArgon2id(password, encodedHash string) (bool, error) {
	p, salt, expected, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

// --- werkzeug (legacy) ---

// scryptKeyLen is werkzeug's hashlib.scrypt dklen.
const scryptKeyLen = 64

// defaultPBKDF2Iterations is what werkzeug uses when a pbkdf2 method string
// omits the iteration count.
const defaultPBKDF2Iterations = 600000

func verifyWerkzeug(password, encodedHash string) (bool, error) {
	method, rest, _ := strings.Cut(encodedHash, "$")
	salt, hexDigest, _ := strings.Cut(rest, "$")
	expected, err := hex.DecodeString(hexDigest)
	if err != nil || len(expected) == 0 || salt == "" {
		return false, ErrInvalidHash
	}

	computed, err := werkzeugDigest(method, []byte(password), []byte(salt), len(expected))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

func werkzeugDigest(method string, password, salt []byte, keyLen int) ([]byte, error) {
	args := strings.Split(method, ":")
	switch args[0] {
	case "pbkdf2":
		if len(args) < 2 || len(args) > 3 {
			return nil, fmt.Errorf("%w: pbkdf2 needs a hash name", ErrInvalidHash)
		}
		newHash, ok := werkzeugHashFunc(args[1])
		if !ok {
			return nil, fmt.Errorf("%w: unsupported pbkdf2 hash %q", ErrInvalidHash, args[1])
		}
		iterations := defaultPBKDF2Iterations
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n <= 0 {
				return nil, ErrInvalidHash
			}
			iterations = n
		}
		key, err := pbkdf2.Key(newHash, string(password), salt, iterations, keyLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return key, nil

	case "scrypt":
		if len(args) != 4 {
			return nil, fmt.Errorf("%w: scrypt needs n, r and p", ErrInvalidHash)
		}
		n, errN := strconv.Atoi(args[1])
		r, errR := strconv.Atoi(args[2])
		p, errP := strconv.Atoi(args[3])
		if errN != nil || errR != nil || errP != nil || keyLen != scryptKeyLen {
			return nil, ErrInvalidHash
		}
		key, err := scrypt.Key(password, salt, n, r, p, scryptKeyLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return key, nil

	default:
		// Pre-2.3 werkzeug "<hash>$salt$hex": HMAC keyed by the salt.
		if len(args) != 1 {
			return nil, ErrInvalidHash
		}
		newHash, ok := werkzeugHashFunc(args[0])
		if !ok {
			return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidHash, args[0])
		}
		mac := hmac.New(newHash, salt)
		mac.Write(password)
		return mac.Sum(nil), nil
	}
}

func werkzeugHashFunc(name string) (func() hash.Hash, bool) {
	switch name {
	case "sha256":
		return sha256.New, true
	case "sha512":
		return sha512.New, true
	case "sha1":
		return sha1.New, true
	default:
		return nil, false
	}
}
