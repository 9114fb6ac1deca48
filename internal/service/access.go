package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/andresverguilla1987/mixtli-nube/internal/audit"
	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
	"github.com/andresverguilla1987/mixtli-nube/pkg/token"
)

var pinRe = regexp.MustCompile(`^[0-9]{4,12}$`)

// maxPinFile bounds how much of a PIN sentinel is read.
const maxPinFile = 1 << 10

// AccessOptions tunes the access gate.
type AccessOptions struct {
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// accessServiceImpl implements AccessService.
type accessServiceImpl struct {
	store    storage.Storage
	tokens   token.Issuer
	recorder audit.Recorder
	ttl      time.Duration
	cost     int
	// dummy is compared against when an album has no PIN so both paths cost one bcrypt check.
	dummy []byte
}

// NewAccessService creates a new access gate.
func NewAccessService(store storage.Storage, tokens token.Issuer, recorder audit.Recorder, opts AccessOptions) (AccessService, error) {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("mixtli-no-pin"), opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &accessServiceImpl{
		store:    store,
		tokens:   tokens,
		recorder: recorder,
		ttl:      opts.TokenTTL,
		cost:     opts.BcryptCost,
		dummy:    dummy,
	}, nil
}

// SetPin protects an album or rotates its PIN.
func (s *accessServiceImpl) SetPin(ctx context.Context, album, pin string) error {
	l := log.Ctx(ctx)
	if err := checkAlbum(album); err != nil {
		return err
	}
	if !pinRe.MatchString(pin) {
		return invalidf("pin must be 4 to 12 digits")
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash pin")
		return err
	}
	line := append(digest, '\n')

	if err := s.store.Write(ctx, naming.PinKey(album), bytes.NewReader(line), int64(len(line)), "text/plain"); err != nil {
		l.Error().Err(err).Str(log.FieldAlbum, album).Msg("failed to write pin")
		return err
	}

	s.recorder.Record(ctx, domain.AuditEntry{Action: audit.ActionPinSet, Album: album, Detail: "album protected"})
	return nil
}

// ClearPin makes an album public again.
func (s *accessServiceImpl) ClearPin(ctx context.Context, album string) error {
	if err := checkAlbum(album); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, naming.PinKey(album)); err != nil {
		return err
	}

	s.recorder.Record(ctx, domain.AuditEntry{Action: audit.ActionPinClear, Album: album, Detail: "album public"})
	return nil
}

// CheckPin exchanges a correct PIN for an access token.
func (s *accessServiceImpl) CheckPin(ctx context.Context, album, pin string) (*domain.AccessGrant, error) {
	l := log.Ctx(ctx)
	if err := checkAlbum(album); err != nil {
		return nil, err
	}

	digest, err := s.readDigest(ctx, album)
	if err != nil {
		return nil, err
	}

	if digest == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(pin))
		l.Info().Str(log.FieldAlbum, album).Msg("pin check declined")
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(digest, []byte(pin)); err != nil {
		l.Info().Str(log.FieldAlbum, album).Msg("pin check declined")
		return nil, ErrUnauthorized
	}

	tok, exp, err := s.tokens.Issue(token.Claims{Album: album}, s.ttl)
	if err != nil {
		l.Error().Err(err).Msg("failed to issue access token")
		return nil, err
	}

	return &domain.AccessGrant{AccessToken: tok, Exp: exp.Unix()}, nil
}

// readDigest returns the stored digest, nil when the album has no PIN.
func (s *accessServiceImpl) readDigest(ctx context.Context, album string) ([]byte, error) {
	rc, err := s.store.Read(ctx, naming.PinKey(album))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPinFile))
	if err != nil {
		return nil, err
	}
	digest := bytes.TrimSpace(data)
	if len(digest) == 0 {
		return nil, nil
	}
	return digest, nil
}

// Authorize lets the request through for public albums, or for protected
// albums when accessToken is valid and bound to album.
func (s *accessServiceImpl) Authorize(ctx context.Context, album, accessToken string) error {
	protected, err := s.store.Exists(ctx, naming.PinKey(album))
	if err != nil {
		return err
	}
	if !protected {
		return nil
	}

	if accessToken == "" {
		return ErrUnauthorized
	}
	claims, err := s.tokens.Verify(accessToken)
	if err != nil || claims.Album != album {
		return ErrUnauthorized
	}
	return nil
}
