package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/protocol"
)

// PostgresStore implements RegistryStore, VerdictStore and
// FingerprintStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects, pings and migrates the database.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registered_services (
		public_key VARCHAR(128) PRIMARY KEY,
		service_type VARCHAR(32) NOT NULL,
		http_endpoint VARCHAR(512) NOT NULL,
		exchange_key VARCHAR(256) NOT NULL,
		attestation BYTEA,
		signature BYTEA NOT NULL,
		signer_public_key VARCHAR(128) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_services_type ON registered_services(service_type);

	CREATE TABLE IF NOT EXISTS verdicts (
		epoch BIGINT NOT NULL,
		msg_id BIGINT NOT NULL,
		decision SMALLINT NOT NULL,
		submitter VARCHAR(128) NOT NULL,
		signature BYTEA NOT NULL,
		signer_public_key VARCHAR(128) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (epoch, msg_id)
	);

	CREATE INDEX IF NOT EXISTS idx_verdicts_submitter ON verdicts(submitter);

	CREATE TABLE IF NOT EXISTS fingerprints (
		id SERIAL PRIMARY KEY,
		fingerprint CHAR(64) UNIQUE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveService persists a signed service registration.
func (s *PostgresStore) SaveService(signed *protocol.Signed[RegisteredService]) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := signed.Object

	query := `
	INSERT INTO registered_services
		(public_key, service_type, http_endpoint, exchange_key, attestation, signature, signer_public_key, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (public_key) DO UPDATE SET
		service_type = EXCLUDED.service_type,
		http_endpoint = EXCLUDED.http_endpoint,
		exchange_key = EXCLUDED.exchange_key,
		attestation = EXCLUDED.attestation,
		signature = EXCLUDED.signature,
		signer_public_key = EXCLUDED.signer_public_key,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		svc.PublicKey,
		string(svc.ServiceType),
		svc.HTTPEndpoint,
		svc.ExchangeKey,
		svc.Attestation,
		signed.Signature.Bytes(),
		signed.PublicKey.String(),
	)
	return err
}

// DeleteService removes a service registration.
func (s *PostgresStore) DeleteService(publicKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, "DELETE FROM registered_services WHERE public_key = $1", publicKey)
	return err
}

// LoadAllServices retrieves all persisted service registrations.
func (s *PostgresStore) LoadAllServices() (map[ServiceType]map[string]*protocol.Signed[RegisteredService], error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT public_key, service_type, http_endpoint, exchange_key, attestation, signature, signer_public_key
		FROM registered_services
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[ServiceType]map[string]*protocol.Signed[RegisteredService]{
		TTPService:      make(map[string]*protocol.Signed[RegisteredService]),
		VerifierService: make(map[string]*protocol.Signed[RegisteredService]),
		ClientService:   make(map[string]*protocol.Signed[RegisteredService]),
	}

	for rows.Next() {
		var (
			publicKey    string
			serviceType  string
			httpEndpoint string
			exchangeKey  string
			attestation  []byte
			signature    []byte
			signerPubKey string
		)

		if err := rows.Scan(&publicKey, &serviceType, &httpEndpoint, &exchangeKey, &attestation, &signature, &signerPubKey); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		svcType := ServiceType(serviceType)
		if !svcType.Valid() {
			continue
		}

		signerKey, err := crypto.NewPublicKeyFromString(signerPubKey)
		if err != nil {
			continue
		}

		signed := &protocol.Signed[RegisteredService]{
			PublicKey: signerKey,
			Signature: crypto.NewSignature(signature),
			Object: &RegisteredService{
				ServiceType:  svcType,
				HTTPEndpoint: httpEndpoint,
				PublicKey:    publicKey,
				ExchangeKey:  exchangeKey,
				Attestation:  attestation,
			},
		}

		result[svcType][publicKey] = signed
	}

	return result, rows.Err()
}

// SaveVerdict persists a signed verdict.
func (s *PostgresStore) SaveVerdict(submitter string, verdict *protocol.Signed[protocol.VerdictMessage]) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := verdict.Object

	query := `
	INSERT INTO verdicts (epoch, msg_id, decision, submitter, signature, signer_public_key)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (epoch, msg_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		int64(v.Epoch),
		int64(v.MsgID),
		int(v.Decision),
		submitter,
		verdict.Signature.Bytes(),
		verdict.PublicKey.String(),
	)
	return err
}

// LoadVerdict retrieves a stored verdict or ErrVerdictNotFound.
func (s *PostgresStore) LoadVerdict(epoch, msgID uint64) (*protocol.Signed[protocol.VerdictMessage], error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT decision, signature, signer_public_key
		FROM verdicts WHERE epoch = $1 AND msg_id = $2
	`, int64(epoch), int64(msgID))

	var (
		decision     int
		signature    []byte
		signerPubKey string
	)
	if err := row.Scan(&decision, &signature, &signerPubKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVerdictNotFound
		}
		return nil, err
	}

	signerKey, err := crypto.NewPublicKeyFromString(signerPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key in store: %w", err)
	}

	return &protocol.Signed[protocol.VerdictMessage]{
		PublicKey: signerKey,
		Signature: crypto.NewSignature(signature),
		Object: &protocol.VerdictMessage{
			Epoch:    epoch,
			MsgID:    msgID,
			Decision: protocol.Decision(decision),
		},
	}, nil
}

// SaveFingerprint adds a fingerprint to the dealer's database. Duplicates
// are ignored.
func (s *PostgresStore) SaveFingerprint(fp fingerprint.Fingerprint) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (fingerprint) VALUES ($1)
		ON CONFLICT (fingerprint) DO NOTHING
	`, fp.String())
	return err
}

// LoadFingerprints returns the fingerprint database in insertion order.
func (s *PostgresStore) LoadFingerprints() ([]fingerprint.Fingerprint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM fingerprints ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fingerprint.Fingerprint
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		fp, err := fingerprint.ParseHex(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid fingerprint in store: %w", err)
		}
		result = append(result, fp)
	}

	return result, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
