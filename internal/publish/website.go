package publish

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
)

// WebsitePublisher inserts articles directly into a brand's website
// database using the connector's field mapping. It supports pgx and
// mysql drivers; the driver name also selects the placeholder format.
type WebsitePublisher struct {
	secrets *secrets.Store
	logger  *zap.SugaredLogger

	// openDB is swappable in tests.
	openDB func(driver, dsn string) (*sql.DB, error)
	now    func() time.Time
}

func NewWebsitePublisher(secretStore *secrets.Store, logger *zap.SugaredLogger) *WebsitePublisher {
	return &WebsitePublisher{
		secrets: secretStore,
		logger:  logger,
		openDB:  sql.Open,
		now:     time.Now,
	}
}

func (w *WebsitePublisher) connect(conn *model.WebsiteConnector) (*sql.DB, error) {
	dsn, err := w.secrets.Decrypt(conn.EncryptedConnString)
	if err != nil {
		return nil, fmt.Errorf("decrypt connection string for connector %s: %w", conn.ID, err)
	}
	db, err := w.openDB(conn.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s target database: %w", conn.Driver, err)
	}
	return db, nil
}

func placeholders(driver string) sq.PlaceholderFormat {
	if driver == "mysql" {
		return sq.Question
	}
	return sq.Dollar
}

// column resolves a canonical content field to the target table column,
// defaulting to the canonical name when the mapping omits it.
func column(mapping map[string]string, field string) string {
	if col, ok := mapping[field]; ok && col != "" {
		return col
	}
	return field
}

func (w *WebsitePublisher) Publish(ctx context.Context, variant *model.ContentVariant, conn model.ConnectorRef) (*model.PublishResult, error) {
	if conn.Website == nil {
		return nil, fmt.Errorf("website publisher needs a website connector, got %q", conn.Platform())
	}
	target := conn.Website

	db, err := w.connect(target)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	mapping := target.FieldMapping
	builder := sq.Insert(target.Table).
		Columns(
			column(mapping, "title"),
			column(mapping, "body"),
			column(mapping, "published_at"),
		).
		Values(variant.Title, variant.Content, w.now()).
		PlaceholderFormat(placeholders(target.Driver))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert for table %s: %w", target.Table, err)
	}

	var externalID string
	if target.Driver == "mysql" {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("insert article into %s: %w", target.Table, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read inserted article id: %w", err)
		}
		externalID = fmt.Sprintf("%d", id)
	} else {
		query += " RETURNING id"
		if err := db.QueryRowContext(ctx, query, args...).Scan(&externalID); err != nil {
			return nil, fmt.Errorf("insert article into %s: %w", target.Table, err)
		}
	}

	w.logger.Infow("article published to website",
		"connector_id", target.ID,
		"table", target.Table,
		"external_id", externalID,
	)
	return &model.PublishResult{ExternalID: externalID}, nil
}

func (w *WebsitePublisher) Delete(ctx context.Context, postID string, conn model.ConnectorRef) (bool, error) {
	if conn.Website == nil {
		return false, fmt.Errorf("website publisher needs a website connector")
	}
	target := conn.Website

	db, err := w.connect(target)
	if err != nil {
		return false, err
	}
	defer db.Close()

	query, args, err := sq.Delete(target.Table).
		Where(sq.Eq{"id": postID}).
		PlaceholderFormat(placeholders(target.Driver)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete article %s: %w", postID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetMetrics is unsupported for direct database targets; the website
// has no engagement API to poll.
func (w *WebsitePublisher) GetMetrics(ctx context.Context, postID string, conn model.ConnectorRef) (map[string]int64, error) {
	return map[string]int64{}, nil
}

// RefreshToken is a no-op; website connectors hold a connection
// string, not an OAuth token.
func (w *WebsitePublisher) RefreshToken(ctx context.Context, conn *model.SocialConnector) (*TokenData, error) {
	return nil, fmt.Errorf("website connector has no token to refresh")
}
