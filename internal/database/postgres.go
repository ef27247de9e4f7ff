package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"clanchat/internal/models"
	"clanchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

//go:embed schema.sql
var schemaSQL string

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate creates missing tables. Statements are idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, avatar, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.Avatar, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, username, email, avatar, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, uuid.NewString(), req.Username, req.Email, string(hash), req.Avatar).Scan(
		&user.ID, &user.Username, &user.Email, &user.Avatar, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", mapError(err))
	}
	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, email, avatar, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.Avatar, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

// Clan Repository Implementation
func (db *PostgresDB) CreateClan(ctx context.Context, name, leaderID string) (*models.Clan, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	clan := &models.Clan{}
	err = tx.QueryRow(ctx,
		`INSERT INTO clans (id, name, leader_id, created_at) VALUES ($1, $2, $3, NOW())
		 RETURNING id, name, leader_id, created_at`,
		uuid.NewString(), name, leaderID,
	).Scan(&clan.ID, &clan.Name, &clan.LeaderID, &clan.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create clan: %w", mapError(err))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO clan_members (clan_id, user_id, role) VALUES ($1, $2, $3)`,
		clan.ID, leaderID, models.RoleLeader,
	); err != nil {
		return nil, fmt.Errorf("failed to add leader: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return clan, nil
}

func (db *PostgresDB) GetClan(ctx context.Context, id string) (*models.Clan, error) {
	clan := &models.Clan{}
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, leader_id, created_at FROM clans WHERE id = $1`, id,
	).Scan(&clan.ID, &clan.Name, &clan.LeaderID, &clan.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return clan, nil
}

func (db *PostgresDB) ListClans(ctx context.Context) ([]*models.Clan, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, leader_id, created_at FROM clans ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clans []*models.Clan
	byID := make(map[string]*models.Clan)
	for rows.Next() {
		clan := &models.Clan{}
		if err := rows.Scan(&clan.ID, &clan.Name, &clan.LeaderID, &clan.CreatedAt); err != nil {
			return nil, err
		}
		clans = append(clans, clan)
		byID[clan.ID] = clan
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := db.pool.Query(ctx, `
		SELECT m.clan_id, u.id, u.username, u.avatar, m.role
		FROM clan_members m
		JOIN users u ON u.id = m.user_id
		ORDER BY u.username`)
	if err != nil {
		return nil, err
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var clanID string
		var m models.Member
		if err := memberRows.Scan(&clanID, &m.ID, &m.Name, &m.Avatar, &m.Role); err != nil {
			return nil, err
		}
		if clan, ok := byID[clanID]; ok {
			clan.Members = append(clan.Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, err
	}

	reqRows, err := db.pool.Query(ctx, `
		SELECT r.clan_id, r.user_id, u.username, r.status, r.created_at
		FROM join_requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.status = $1
		ORDER BY r.created_at`, models.RequestPending)
	if err != nil {
		return nil, err
	}
	defer reqRows.Close()
	for reqRows.Next() {
		var r models.JoinRequest
		if err := reqRows.Scan(&r.ClanID, &r.UserID, &r.UserName, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		if clan, ok := byID[r.ClanID]; ok {
			clan.PendingRequests = append(clan.PendingRequests, r)
		}
	}
	return clans, reqRows.Err()
}

// Membership Repository Implementation
func (db *PostgresDB) AddMember(ctx context.Context, clanID, userID string, role models.Role) error {
	query := `
		INSERT INTO clan_members (clan_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (clan_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := db.pool.Exec(ctx, query, clanID, userID, role)
	return err
}

func (db *PostgresDB) RemoveMember(ctx context.Context, clanID, userID string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM clan_members WHERE clan_id = $1 AND user_id = $2`, clanID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) GetMemberRole(ctx context.Context, clanID, userID string) (models.Role, error) {
	var role models.Role
	err := db.pool.QueryRow(ctx,
		`SELECT role FROM clan_members WHERE clan_id = $1 AND user_id = $2`, clanID, userID,
	).Scan(&role)
	if err != nil {
		return "", mapError(err)
	}
	return role, nil
}

func (db *PostgresDB) GetClanMembers(ctx context.Context, clanID string) ([]models.Member, error) {
	query := `
		SELECT u.id, u.username, u.avatar, m.role
		FROM clan_members m
		JOIN users u ON m.user_id = u.id
		WHERE m.clan_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, clanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var member models.Member
		if err := rows.Scan(&member.ID, &member.Name, &member.Avatar, &member.Role); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// Join Request Repository Implementation
func (db *PostgresDB) CreateJoinRequest(ctx context.Context, clanID, userID string) (*models.JoinRequest, error) {
	// A resolved request may be reopened; a pending one may not.
	query := `
		INSERT INTO join_requests (clan_id, user_id, status, created_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (clan_id, user_id) DO UPDATE
			SET status = EXCLUDED.status, created_at = NOW(), resolved_at = NULL
			WHERE join_requests.status <> $3
		RETURNING clan_id, user_id, status, created_at`

	req := &models.JoinRequest{}
	err := db.pool.QueryRow(ctx, query, clanID, userID, models.RequestPending).Scan(
		&req.ClanID, &req.UserID, &req.Status, &req.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, mapError(err)
	}
	return req, nil
}

func (db *PostgresDB) ResolveJoinRequest(ctx context.Context, clanID, userID string, status models.RequestStatus) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE join_requests SET status = $3, resolved_at = NOW()
		WHERE clan_id = $1 AND user_id = $2 AND status = $4`,
		clanID, userID, status, models.RequestPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if status == models.RequestAccepted {
		if _, err := tx.Exec(ctx, `
			INSERT INTO clan_members (clan_id, user_id, role) VALUES ($1, $2, $3)
			ON CONFLICT (clan_id, user_id) DO NOTHING`,
			clanID, userID, models.RoleMember); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *PostgresDB) ListPendingRequests(ctx context.Context, clanID string) ([]models.JoinRequest, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT r.clan_id, r.user_id, u.username, r.status, r.created_at
		FROM join_requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.clan_id = $1 AND r.status = $2
		ORDER BY r.created_at`, clanID, models.RequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.JoinRequest
	for rows.Next() {
		var r models.JoinRequest
		if err := rows.Scan(&r.ClanID, &r.UserID, &r.UserName, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	var replyID, replyText, replyName string
	if msg.ReplyTo != nil {
		replyID, replyText, replyName = msg.ReplyTo.ID, msg.ReplyTo.Text, msg.ReplyTo.SenderName
	}

	query := `
		INSERT INTO messages (id, room_id, sender_id, text, image_url, voice_url,
			reply_to_id, reply_text, reply_sender_name, status, status_rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := db.pool.Exec(ctx, query,
		msg.ID, msg.RoomID, msg.Sender.ID, msg.Text, msg.ImageURL, msg.VoiceURL,
		replyID, replyText, replyName, msg.Status, msg.Status.Rank(), msg.CreatedAt,
	)
	return mapError(err)
}

const messageColumns = `
	m.id, m.room_id, m.text, m.image_url, m.voice_url,
	u.id, u.username, u.avatar, m.created_at, m.status,
	m.reply_to_id, m.reply_text, m.reply_sender_name`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var replyID, replyText, replyName string
	err := row.Scan(
		&msg.ID, &msg.RoomID, &msg.Text, &msg.ImageURL, &msg.VoiceURL,
		&msg.Sender.ID, &msg.Sender.Name, &msg.Sender.Avatar, &msg.CreatedAt, &msg.Status,
		&replyID, &replyText, &replyName,
	)
	if err != nil {
		return nil, err
	}
	if replyID != "" {
		msg.ReplyTo = &models.ReplyRef{ID: replyID, Text: replyText, SenderName: replyName}
	}
	return msg, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, mapError(err)
	}
	if err := db.attachReactions(ctx, []*models.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (db *PostgresDB) DeleteMessage(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) LoadMessages(ctx context.Context, roomID, beforeID string, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		  AND ($2 = '' OR m.seq < (SELECT seq FROM messages WHERE id = $2))
		ORDER BY m.seq DESC
		LIMIT $3`

	rows, err := db.pool.Query(ctx, query, roomID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := db.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (db *PostgresDB) attachReactions(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]string, len(messages))
	byID := make(map[string]*models.Message, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	rows, err := db.pool.Query(ctx,
		`SELECT message_id, member_id, emoji FROM reactions WHERE message_id = ANY($1) ORDER BY member_id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.MessageID, &r.MemberID, &r.Emoji); err != nil {
			return err
		}
		byID[r.MessageID].Reactions = append(byID[r.MessageID].Reactions, r)
	}
	return rows.Err()
}

func (db *PostgresDB) AdvanceStatus(ctx context.Context, id string, status models.MessageStatus) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE messages SET status = $2, status_rank = $3 WHERE id = $1 AND status_rank < $3`,
		id, status, status.Rank())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reaction Repository Implementation
func (db *PostgresDB) SetReaction(ctx context.Context, messageID, memberID, emoji string) error {
	query := `
		INSERT INTO reactions (message_id, member_id, emoji) VALUES ($1, $2, $3)
		ON CONFLICT (message_id, member_id) DO UPDATE SET emoji = EXCLUDED.emoji`
	_, err := db.pool.Exec(ctx, query, messageID, memberID, emoji)
	return mapError(err)
}

func (db *PostgresDB) ClearReaction(ctx context.Context, messageID, memberID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM reactions WHERE message_id = $1 AND member_id = $2`, messageID, memberID)
	return err
}

// Notification Repository Implementation
func (db *PostgresDB) SaveNotification(ctx context.Context, userID string, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO notifications (user_id, id, type, content, actor_id, actor_name, clan_id, clan_name, seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, id) DO UPDATE SET
			type = EXCLUDED.type, content = EXCLUDED.content, seen = EXCLUDED.seen, created_at = EXCLUDED.created_at`
	_, err := db.pool.Exec(ctx, query,
		userID, n.ID, n.Type, n.Content, n.UserID, n.UserName, n.ClanID, n.ClanName, n.Seen, n.CreatedAt)
	return err
}

func (db *PostgresDB) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, type, content, actor_id, actor_name, clan_id, clan_name, seen, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.Type, &n.Content, &n.UserID, &n.UserName, &n.ClanID, &n.ClanName, &n.Seen, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (db *PostgresDB) MarkNotificationsSeen(ctx context.Context, userID string, ids []string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE notifications SET seen = TRUE WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	return err
}

func (db *PostgresDB) DeleteNotification(ctx context.Context, userID, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1 AND id = $2`, userID, id)
	return err
}
