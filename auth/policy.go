package auth

import (
	"context"
	"errors"
	"fmt"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// MinPassphraseLength is the caller-facing floor for master passphrases.
// The vault lifecycle itself never second-guesses passphrase strength; this
// policy runs in the layer that collects user input.
const MinPassphraseLength = 8

// ValidateOptions tunes master passphrase validation.
type ValidateOptions struct {
	MinLength      int
	MinZXCVBNScore int         // 0..4; 0 disables strength scoring
	HIBP           *HIBPClient // nil disables the breach lookup
}

// DefaultValidateOptions returns the policy applied to new vaults. The HIBP
// lookup is opt-in; callers that want it attach a client.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{
		MinLength:      MinPassphraseLength,
		MinZXCVBNScore: 2,
	}
}

// ValidateMasterPassphrase applies the master passphrase policy. The HIBP
// check fails open on network errors: a breach lookup outage must not block
// vault setup.
func ValidateMasterPassphrase(ctx context.Context, passphrase string, opts ValidateOptions) error {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = MinPassphraseLength
	}
	if len(passphrase) < minLen {
		return fmt.Errorf("passphrase must be at least %d characters long", minLen)
	}

	if opts.MinZXCVBNScore > 0 {
		strength := zxcvbn.PasswordStrength(passphrase, nil)
		if strength.Score < opts.MinZXCVBNScore {
			return errors.New("passphrase is too guessable; pick a longer or less common one")
		}
	}

	if opts.HIBP != nil {
		count, err := opts.HIBP.BreachCount(ctx, passphrase)
		if err == nil && count > 0 {
			return fmt.Errorf("passphrase appears in %d known breaches; pick another", count)
		}
	}

	return nil
}
