package submission

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrInvalidSignature is returned when a report token fails verification.
var ErrInvalidSignature = errors.New("invalid report signature")

// ReportClaims are the signed facts of a report.
type ReportClaims struct {
	jwt.RegisteredClaims
	QuizID       string  `json:"quiz_id"`
	Score        float64 `json:"score"`
	TotalMarks   float64 `json:"total_marks"`
	Percentage   float64 `json:"percentage"`
	Passed       bool    `json:"passed"`
	IsAutoSubmit bool    `json:"is_auto_submit"`
	ChainDigest  string  `json:"chain_digest"`
}

// Signer issues and verifies HS256 report signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer keyed by secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the compact JWT covering r.
func (s *Signer) Sign(r *model.Report) (string, error) {
	claims := ReportClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       r.SessionID.String(),
			Subject:  r.SessionID.String(),
			Issuer:   "exstem-proctor",
			IssuedAt: jwt.NewNumericDate(r.SubmittedAt),
		},
		QuizID:       r.QuizID,
		Score:        r.Score,
		TotalMarks:   r.TotalMarks,
		Percentage:   r.Percentage,
		Passed:       r.Passed,
		IsAutoSubmit: r.IsAutoSubmit,
		ChainDigest:  r.EventChainDigest,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign report: %w", err)
	}
	return signed, nil
}

// Verify parses a report token and returns its claims.
func (s *Signer) Verify(tokenStr string) (*ReportClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ReportClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claims, ok := token.Claims.(*ReportClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// VerifyReport checks that the signature covers exactly the report's facts.
func (s *Signer) VerifyReport(r *model.Report) error {
	claims, err := s.Verify(r.Signature)
	if err != nil {
		return err
	}
	if claims.Subject != r.SessionID.String() ||
		claims.QuizID != r.QuizID ||
		claims.Score != r.Score ||
		claims.TotalMarks != r.TotalMarks ||
		claims.Percentage != r.Percentage ||
		claims.Passed != r.Passed ||
		claims.IsAutoSubmit != r.IsAutoSubmit ||
		claims.ChainDigest != r.EventChainDigest {
		return fmt.Errorf("%w: report does not match signed claims", ErrInvalidSignature)
	}
	return nil
}
