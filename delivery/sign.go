package delivery

import (
	"fmt"
	"net/http"

	"github.com/fediglade/fediglade/identity"
	"github.com/google/uuid"
)

// NewSigner builds a Signer that looks up actorId's RSA key through
// database and signs with identity.SignRequest, the same primitive the
// Fetcher uses for outbound GETs.
func NewSigner(database Database) Signer {
	return func(req *http.Request, actorId uuid.UUID) error {
		err, actor := database.ReadActorById(actorId)
		if err != nil || actor == nil {
			return fmt.Errorf("delivery: signing actor %s not found: %w", actorId, err)
		}
		if actor.PrivateKeyPEM == "" {
			return fmt.Errorf("delivery: actor %s has no private key", actorId)
		}
		priv, err := identity.ParsePrivateKey(actor.PrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("delivery: parsing private key for %s: %w", actorId, err)
		}
		keyID := actor.ActorURI + "#main-key"
		return identity.SignRequest(req, priv, keyID)
	}
}
