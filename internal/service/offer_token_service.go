package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sma-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/sma-scheduling-engine/pkg/errors"
)

const offerTokenIssuer = "sma-scheduling-engine"

// OfferTokenService signs the accept/decline tokens carried by candidate offers.
type OfferTokenService struct {
	secret []byte
	now    func() time.Time
}

// NewOfferTokenService constructs the token signer.
func NewOfferTokenService(secret string) *OfferTokenService {
	return &OfferTokenService{secret: []byte(secret), now: time.Now}
}

// Issue signs a token binding the task to its candidate until expiresAt.
func (s *OfferTokenService) Issue(taskID, candidateID string, expiresAt time.Time) (string, error) {
	issuedAt := s.now()
	claims := models.OfferClaims{
		TaskID: taskID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    offerTokenIssuer,
			Subject:   candidateID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a token and returns its claims.
func (s *OfferTokenService) Parse(tokenString string) (*models.OfferClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.OfferClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(offerTokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid offer token")
	}
	claims, ok := token.Claims.(*models.OfferClaims)
	if !ok || !token.Valid || claims.TaskID == "" || claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid offer token")
	}
	return claims, nil
}
