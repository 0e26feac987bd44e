// Package credential assembles the identity check credential issued at the
// end of the flow. Building is pure; signing is left to the caller.
package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	NamePartGivenName  = "GivenName"
	NamePartFamilyName = "FamilyName"

	ContextW3C            = "https://www.w3.org/2018/credentials/v1"
	ContextIdentityVocab  = "https://vocab.account.gov.uk/contexts/identity-v1.jsonld"
	TypeVerifiable        = "VerifiableCredential"
	TypeIdentityAssertion = "IdentityAssertionCredential"
)

// NamePart is one component of a name, tagged GivenName or FamilyName
type NamePart struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Name is an ordered list of name parts
type Name struct {
	NameParts []NamePart `json:"nameParts"`
}

type BirthDate struct {
	Value string `json:"value"`
}

type CredentialSubject struct {
	Name      []Name      `json:"name"`
	BirthDate []BirthDate `json:"birthDate"`
}

type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	Type              []string          `json:"type"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
}

// NewCredentialSubject lists every given name before every family name,
// keeping input order, under a single name entry.
func NewCredentialSubject(givenNames, familyNames []string, birthDate string) CredentialSubject {
	parts := make([]NamePart, 0, len(givenNames)+len(familyNames))
	for _, n := range givenNames {
		parts = append(parts, NamePart{Type: NamePartGivenName, Value: n})
	}
	for _, n := range familyNames {
		parts = append(parts, NamePart{Type: NamePartFamilyName, Value: n})
	}
	return CredentialSubject{
		Name:      []Name{{NameParts: parts}},
		BirthDate: []BirthDate{{Value: birthDate}},
	}
}

// NewVerifiableCredential wraps a subject in the fixed context and type
func NewVerifiableCredential(subject CredentialSubject) VerifiableCredential {
	return VerifiableCredential{
		Context:           []string{ContextW3C, ContextIdentityVocab},
		Type:              []string{TypeVerifiable, TypeIdentityAssertion},
		CredentialSubject: subject,
	}
}

// Builder produces the claim set of a credential JWT
type Builder struct {
	issuer  string
	ttl     time.Duration
	nowFunc func() time.Time
	idFunc  func() string
}

type BuilderOption func(*Builder)

// WithTTL adds an exp claim ttl after issuance. Zero leaves exp out.
func WithTTL(ttl time.Duration) BuilderOption {
	return func(b *Builder) {
		b.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.nowFunc = now
	}
}

func NewBuilder(issuer string, options ...BuilderOption) *Builder {
	b := &Builder{
		issuer:  issuer,
		nowFunc: time.Now,
		idFunc:  func() string { return "urn:uuid:" + uuid.New().String() },
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Claims returns the JWT claims for a credential about subject. Every call
// carries a fresh jti, even for identical subject data.
func (b *Builder) Claims(subject string, cs CredentialSubject) jwt.MapClaims {
	now := b.nowFunc()
	claims := jwt.MapClaims{
		"iss": b.issuer,
		"sub": subject,
		"nbf": now.Unix(),
		"iat": now.Unix(),
		"jti": b.idFunc(),
		"vc":  NewVerifiableCredential(cs),
	}
	if b.ttl > 0 {
		claims["exp"] = now.Add(b.ttl).Unix()
	}
	return claims
}
