package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

const (
	codeLetters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits      = "0123456789"
	defaultAttempts = 10
)

type addressStore interface {
	AddressByCode(ctx context.Context, code string) (models.LessonAddress, error)
	CodeFor(ctx context.Context, addr models.LessonAddress) (string, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	AddressExists(ctx context.Context, addr models.LessonAddress) (bool, error)
}

// AddressService mints lesson codes and resolves affordance refs to lesson addresses.
type AddressService struct {
	store    addressStore
	attempts int
	logger   *zap.Logger
	random   func(alphabet string) (byte, error)
}

// NewAddressService constructs the codec.
func NewAddressService(store addressStore, attempts int, logger *zap.Logger) *AddressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &AddressService{store: store, attempts: attempts, logger: logger, random: randomChar}
}

// MintCode returns a fresh code no roster row carries yet.
func (s *AddressService) MintCode(ctx context.Context) (string, error) {
	for i := 0; i < s.attempts; i++ {
		code, err := s.generate()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate lesson code")
		}
		taken, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson code")
		}
		if !taken {
			return code, nil
		}
		s.logger.Debug("lesson code collision", zap.String("code", code), zap.Int("attempt", i+1))
	}
	s.logger.Error("lesson code space exhausted", zap.Int("attempts", s.attempts))
	return "", appErrors.Clone(appErrors.ErrInternal, "failed to mint a unique lesson code")
}

// Decode resolves a ref to the lesson it names. Stale or malformed refs yield ErrAddressNotFound.
func (s *AddressService) Decode(ctx context.Context, ref models.AddressRef) (models.LessonAddress, error) {
	switch {
	case ref.IsCode():
		addr, err := s.store.AddressByCode(ctx, ref.Code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.LessonAddress{}, appErrors.ErrAddressNotFound
			}
			return models.LessonAddress{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson code")
		}
		return addr, nil

	case ref.Legacy != nil && !ref.Legacy.IsZero():
		addr := *ref.Legacy
		exists, err := s.store.AddressExists(ctx, addr)
		if err != nil {
			return models.LessonAddress{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson")
		}
		if !exists {
			return models.LessonAddress{}, appErrors.ErrAddressNotFound
		}
		return addr, nil
	}
	return models.LessonAddress{}, appErrors.ErrAddressNotFound
}

// RefFor prefers the lesson's code and falls back to the legacy address form.
func (s *AddressService) RefFor(ctx context.Context, addr models.LessonAddress) models.AddressRef {
	code, err := s.store.CodeFor(ctx, addr)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("lookup lesson code failed", zap.String("lesson", addr.String()), zap.Error(err))
		}
		return models.LegacyRef(addr)
	}
	if code == "" {
		return models.LegacyRef(addr)
	}
	return models.CodeRef(code)
}

func (s *AddressService) generate() (string, error) {
	buf := make([]byte, 0, 10)
	for i := 0; i < 5; i++ {
		c, err := s.random(codeLetters)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for i := 0; i < 5; i++ {
		c, err := s.random(codeDigits)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

func randomChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}
