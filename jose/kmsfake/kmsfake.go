// Package kmsfake is an in-process stand-in for AWS KMS backed by local keys.
// It supports the calls the jose adapter makes and nothing else.
package kmsfake

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/jrsteele09/claimed-identity-cri/jose"
	"github.com/pkg/errors"
)

var _ jose.KMSClient = (*FakeKMS)(nil)

type FakeKMS struct {
	lock     sync.RWMutex
	ecKeys   map[string]*ecdsa.PrivateKey
	rsaKeys  map[string]*rsa.PrivateKey
	calls    map[string]int
	failNext map[string]error
}

func New() *FakeKMS {
	return &FakeKMS{
		ecKeys:   make(map[string]*ecdsa.PrivateKey),
		rsaKeys:  make(map[string]*rsa.PrivateKey),
		calls:    make(map[string]int),
		failNext: make(map[string]error),
	}
}

// AddSigningKey generates a P-256 key under keyID and returns it
func (f *FakeKMS) AddSigningKey(keyID string) *ecdsa.PrivateKey {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.ecKeys[keyID] = key
	return key
}

// AddEncryptionKey generates a 2048 bit RSA key under keyID and returns it
func (f *FakeKMS) AddEncryptionKey(keyID string) *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	f.SetEncryptionKey(keyID, key)
	return key
}

// SetEncryptionKey registers an existing RSA key, e.g. the same key under an alias
func (f *FakeKMS) SetEncryptionKey(keyID string, key *rsa.PrivateKey) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.rsaKeys[keyID] = key
}

// FailNext makes the next call to operation ("Sign", "Verify", "Decrypt",
// "GetPublicKey") return err.
func (f *FakeKMS) FailNext(operation string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failNext[operation] = err
}

// Calls returns how many times operation has been invoked
func (f *FakeKMS) Calls(operation string) int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.calls[operation]
}

func (f *FakeKMS) record(operation string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls[operation]++
	if err, ok := f.failNext[operation]; ok {
		delete(f.failNext, operation)
		return err
	}
	return nil
}

func notFound(keyID *string) error {
	return &types.NotFoundException{Message: aws.String("key not found: " + aws.ToString(keyID))}
}

func digest(message []byte, messageType types.MessageType) []byte {
	if messageType == types.MessageTypeDigest {
		return message
	}
	sum := sha256.Sum256(message)
	return sum[:]
}

func (f *FakeKMS) Sign(_ context.Context, params *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	if err := f.record("Sign"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	key, ok := f.ecKeys[aws.ToString(params.KeyId)]
	f.lock.RUnlock()
	if !ok {
		return nil, notFound(params.KeyId)
	}
	if params.SigningAlgorithm != types.SigningAlgorithmSpecEcdsaSha256 {
		return nil, &types.InvalidKeyUsageException{Message: aws.String("unsupported signing algorithm")}
	}

	sig, err := ecdsa.SignASN1(rand.Reader, key, digest(params.Message, params.MessageType))
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	return &kms.SignOutput{
		KeyId:            params.KeyId,
		Signature:        sig,
		SigningAlgorithm: params.SigningAlgorithm,
	}, nil
}

func (f *FakeKMS) Verify(_ context.Context, params *kms.VerifyInput, _ ...func(*kms.Options)) (*kms.VerifyOutput, error) {
	if err := f.record("Verify"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	key, ok := f.ecKeys[aws.ToString(params.KeyId)]
	f.lock.RUnlock()
	if !ok {
		return nil, notFound(params.KeyId)
	}

	if !ecdsa.VerifyASN1(&key.PublicKey, digest(params.Message, params.MessageType), params.Signature) {
		return nil, &types.KMSInvalidSignatureException{Message: aws.String("signature is invalid")}
	}
	return &kms.VerifyOutput{
		KeyId:            params.KeyId,
		SignatureValid:   true,
		SigningAlgorithm: params.SigningAlgorithm,
	}, nil
}

func (f *FakeKMS) Decrypt(_ context.Context, params *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if err := f.record("Decrypt"); err != nil {
		return nil, err
	}
	f.lock.RLock()
	key, ok := f.rsaKeys[aws.ToString(params.KeyId)]
	f.lock.RUnlock()
	if !ok {
		return nil, notFound(params.KeyId)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, key, params.CiphertextBlob, nil)
	if err != nil {
		return nil, &types.InvalidCiphertextException{Message: aws.String(err.Error())}
	}
	return &kms.DecryptOutput{
		KeyId:               params.KeyId,
		Plaintext:           plaintext,
		EncryptionAlgorithm: params.EncryptionAlgorithm,
	}, nil
}

func (f *FakeKMS) GetPublicKey(_ context.Context, params *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	if err := f.record("GetPublicKey"); err != nil {
		return nil, err
	}
	keyID := aws.ToString(params.KeyId)

	f.lock.RLock()
	var pub any
	if key, ok := f.ecKeys[keyID]; ok {
		pub = &key.PublicKey
	} else if key, ok := f.rsaKeys[keyID]; ok {
		pub = &key.PublicKey
	}
	f.lock.RUnlock()
	if pub == nil {
		return nil, notFound(params.KeyId)
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "marshal public key")
	}
	return &kms.GetPublicKeyOutput{KeyId: params.KeyId, PublicKey: der}, nil
}
