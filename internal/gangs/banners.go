package gangs

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/charbot/charbot/internal/blob"
	"github.com/charbot/charbot/internal/store"
	"github.com/oklahomer/go-kasumi/logger"
)

// Banner is a gang leader's profile banner request.
type Banner struct {
	UserID int64
	Quote  string
	// Color is the solid background color, or the second gradient color
	// when Gradient is set. Zero when a background image is used.
	Color      int
	Gradient   bool
	Background string
	Requested  time.Time
	Approved   bool
}

// BannerRequest describes a banner. At most one of Color and Background may
// be given; Gradient needs Color.
type BannerRequest struct {
	UserID      int64
	Quote       string
	Color       *Color
	Gradient    bool
	Background  []byte
	ContentType string
}

// AllowedBanner checks that the user leads a gang and has the rep required to
// request a banner.
func (s *Service) AllowedBanner(ctx context.Context, userID int64) error {
	return allowedBanner(ctx, s.db, userID)
}

func allowedBanner(ctx context.Context, q store.Querier, userID int64) error {
	var (
		leader, leadership bool
		points             int
	)
	err := q.QueryRow(ctx,
		"SELECT m.leader, m.leadership, COALESCE(u.points, 0) FROM gang_members m "+
			"LEFT JOIN users u ON u.id = m.user_id WHERE m.user_id = ?", userID,
	).Scan(&leader, &leadership, &points)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotInGang
	}
	if err != nil {
		return fmt.Errorf("select banner leader: %w", err)
	}
	if !leader && !leadership {
		return errNotLeadership
	}
	if points < BannerRepRequirement {
		return userErrorf("You don't have enough rep to request a banner! (Have: %d, Need: %d)", points, BannerRepRequirement)
	}
	return nil
}

// CheckBannerParameters validates the background choice of a banner request.
func CheckBannerParameters(hasBase bool, color *Color, gradient bool) error {
	if !hasBase && gradient && color == nil {
		return userErrorf("You need to specify a base image, or if you want a gradient, you must specify the second color!")
	}
	if hasBase && color != nil {
		return userErrorf("You can't specify both a base image and a color!")
	}
	return nil
}

// MaxBannerPixels bounds the decoded size of a banner background.
const MaxBannerPixels = 4096 * 4096

// normalizeBackground decodes a PNG or JPEG upload and re-encodes it as PNG.
// The header is checked first so that small files declaring huge
// dimensions are rejected before any pixel is allocated.
func normalizeBackground(data []byte, contentType string) ([]byte, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ct != "" && ct != "image/png" && ct != "image/jpeg" {
		return nil, userErrorf("The base image must be a PNG or JPEG!")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		logger.Debugf("Failed to decode banner background header: %+v", err)
		return nil, userErrorf("Failed to grab image, try again.")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxBannerPixels {
		logger.Debugf("Rejected banner background of %dx%d pixels", cfg.Width, cfg.Height)
		return nil, userErrorf("Failed to grab image, try again.")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Debugf("Failed to decode banner background: %+v", err)
		return nil, userErrorf("Failed to grab image, try again.")
	}
	if format != "png" && format != "jpeg" {
		return nil, userErrorf("The base image must be a PNG or JPEG!")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode banner background: %w", err)
	}
	return buf.Bytes(), nil
}

// BannerKey is the blob key of a user's banner background.
func BannerKey(userID int64) string {
	return "banners/" + strconv.FormatInt(userID, 10) + ".png"
}

// RequestBanner stores a banner request for moderator approval, replacing
// any previous request of the user.
func (s *Service) RequestBanner(ctx context.Context, req BannerRequest) (Banner, error) {
	hasBase := len(req.Background) > 0
	if err := CheckBannerParameters(hasBase, req.Color, req.Gradient); err != nil {
		return Banner{}, err
	}
	quote := strings.TrimSpace(req.Quote)
	if quote == "" {
		return Banner{}, userErrorf("Your banner needs a quote!")
	}

	var background []byte
	if hasBase {
		normalized, err := normalizeBackground(req.Background, req.ContentType)
		if err != nil {
			return Banner{}, err
		}
		background = normalized
	}

	banner := Banner{UserID: req.UserID, Quote: quote, Gradient: req.Gradient, Requested: s.now().UTC()}
	if req.Color != nil {
		banner.Color = req.Color.Value
	}
	var previous string
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := allowedBanner(ctx, tx, req.UserID); err != nil {
			return err
		}
		old, err := loadBanner(ctx, tx, req.UserID)
		if err != nil && !errors.Is(err, errNoBanner) {
			return err
		}
		previous = old.Background

		var key sql.NullString
		if background != nil {
			banner.Background = BannerKey(req.UserID)
			key = sql.NullString{String: banner.Background, Valid: true}
		}
		var color sql.NullInt64
		if req.Color != nil {
			color = sql.NullInt64{Int64: int64(req.Color.Value), Valid: true}
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO banners (user_id, quote, color, gradient, background, cooldown, approved) VALUES (?, ?, ?, ?, ?, ?, FALSE) "+
				"ON CONFLICT (user_id) DO UPDATE SET quote = excluded.quote, color = excluded.color, gradient = excluded.gradient, "+
				"background = excluded.background, cooldown = excluded.cooldown, approved = FALSE",
			req.UserID, quote, color, req.Gradient, key, banner.Requested,
		)
		if err != nil {
			return fmt.Errorf("upsert banner: %w", err)
		}

		// Stored last so a failed upsert leaves the current background alone.
		if background != nil {
			if err := s.blobs.Put(ctx, blob.Object{Key: banner.Background, ContentType: "image/png", Data: background}); err != nil {
				return fmt.Errorf("store banner background: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Banner{}, err
	}
	if previous != "" && previous != banner.Background {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			logger.Warnf("Failed to delete banner background %s: %+v", previous, err)
		}
	}
	return banner, nil
}

// BannerStatus returns the user's banner request.
func (s *Service) BannerStatus(ctx context.Context, userID int64) (Banner, error) {
	return loadBanner(ctx, s.db, userID)
}

func loadBanner(ctx context.Context, q store.Querier, userID int64) (Banner, error) {
	var (
		b          Banner
		color      sql.NullInt64
		background sql.NullString
	)
	err := q.QueryRow(ctx,
		"SELECT user_id, quote, color, gradient, background, cooldown, approved FROM banners WHERE user_id = ?", userID,
	).Scan(&b.UserID, &b.Quote, &color, &b.Gradient, &background, &b.Requested, &b.Approved)
	if errors.Is(err, sql.ErrNoRows) {
		return Banner{}, errNoBanner
	}
	if err != nil {
		return Banner{}, fmt.Errorf("select banner: %w", err)
	}
	b.Color = int(color.Int64)
	b.Background = background.String
	return b, nil
}

// ApproveBanner marks a banner request approved.
func (s *Service) ApproveBanner(ctx context.Context, userID int64) (Banner, error) {
	var out Banner
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		b, err := loadBanner(ctx, tx, userID)
		if err != nil {
			return err
		}
		if b.Approved {
			return userErrorf("That banner is already approved.")
		}
		if _, err := tx.Exec(ctx, "UPDATE banners SET approved = TRUE WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("approve banner: %w", err)
		}
		b.Approved = true
		out = b
		return nil
	})
	return out, err
}

// DenyBanner deletes a banner request and its background.
func (s *Service) DenyBanner(ctx context.Context, userID int64) error {
	var background string
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		b, err := loadBanner(ctx, tx, userID)
		if err != nil {
			return err
		}
		background = b.Background
		if _, err := tx.Exec(ctx, "DELETE FROM banners WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete banner: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if background != "" {
		if err := s.blobs.Delete(ctx, background); err != nil {
			logger.Warnf("Failed to delete banner background %s: %+v", background, err)
		}
	}
	return nil
}

// BannerBackground returns the stored background image of a banner.
func (s *Service) BannerBackground(ctx context.Context, b Banner) (blob.Object, error) {
	if b.Background == "" {
		return blob.Object{}, blob.ErrNotFound
	}
	return s.blobs.Get(ctx, b.Background)
}
