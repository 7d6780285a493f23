package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"opsfloww.io/internal/auth"
)

type userDoc struct {
	ID                       primitive.ObjectID `bson:"_id,omitempty"`
	Name                     string             `bson:"name"`
	Email                    string             `bson:"email"`
	Avatar                   string             `bson:"avatar,omitempty"`
	Role                     string             `bson:"role"`
	Department               string             `bson:"department,omitempty"`
	Position                 string             `bson:"position,omitempty"`
	EmailVerified            bool               `bson:"emailVerified"`
	Active                   bool               `bson:"active"`
	Settings                 auth.Settings      `bson:"settings"`
	PasswordHash             string             `bson:"password"`
	PasswordChangedAt        *time.Time         `bson:"passwordChangedAt,omitempty"`
	PasswordResetToken       string             `bson:"passwordResetToken,omitempty"`
	PasswordResetExpires     *time.Time         `bson:"passwordResetExpires,omitempty"`
	EmailVerificationToken   string             `bson:"emailVerificationToken,omitempty"`
	EmailVerificationExpires *time.Time         `bson:"emailVerificationExpires,omitempty"`
	LoginAttempts            int                `bson:"loginAttempts"`
	LockUntil                *time.Time         `bson:"lockUntil,omitempty"`
	TwoFactorSecret          string             `bson:"twoFactorSecret,omitempty"`
	CreatedAt                time.Time          `bson:"createdAt"`
	UpdatedAt                time.Time          `bson:"updatedAt"`
}

func userToDoc(u *auth.User) userDoc {
	d := userDoc{
		Name:                     u.Name,
		Email:                    u.Email,
		Avatar:                   u.Avatar,
		Role:                     string(u.Role),
		Department:               u.Department,
		Position:                 u.Position,
		EmailVerified:            u.EmailVerified,
		Active:                   u.Active,
		Settings:                 u.Settings,
		PasswordHash:             u.PasswordHash,
		PasswordChangedAt:        u.PasswordChangedAt,
		PasswordResetToken:       u.PasswordResetToken,
		PasswordResetExpires:     u.PasswordResetExpires,
		EmailVerificationToken:   u.EmailVerificationToken,
		EmailVerificationExpires: u.EmailVerificationExpires,
		LoginAttempts:            u.LoginAttempts,
		LockUntil:                u.LockUntil,
		TwoFactorSecret:          u.TwoFactorSecret,
		CreatedAt:                u.CreatedAt,
		UpdatedAt:                u.UpdatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		d.ID = oid
	}
	return d
}

func (d userDoc) user() *auth.User {
	return &auth.User{
		ID:                       d.ID.Hex(),
		Name:                     d.Name,
		Email:                    d.Email,
		Avatar:                   d.Avatar,
		Role:                     auth.Role(d.Role),
		Department:               d.Department,
		Position:                 d.Position,
		EmailVerified:            d.EmailVerified,
		Active:                   d.Active,
		Settings:                 d.Settings,
		PasswordHash:             d.PasswordHash,
		PasswordChangedAt:        utcPtr(d.PasswordChangedAt),
		PasswordResetToken:       d.PasswordResetToken,
		PasswordResetExpires:     utcPtr(d.PasswordResetExpires),
		EmailVerificationToken:   d.EmailVerificationToken,
		EmailVerificationExpires: utcPtr(d.EmailVerificationExpires),
		LoginAttempts:            d.LoginAttempts,
		LockUntil:                utcPtr(d.LockUntil),
		TwoFactorSecret:          d.TwoFactorSecret,
		CreatedAt:                d.CreatedAt.UTC(),
		UpdatedAt:                d.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// tokenFields returns the digest and expiry field names for a token kind.
func tokenFields(kind auth.TokenKind) (string, string) {
	if kind == auth.TokenEmailVerification {
		return "emailVerificationToken", "emailVerificationExpires"
	}
	return "passwordResetToken", "passwordResetExpires"
}

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	res, err := s.users.InsertOne(ctx, userToDoc(u))
	if err != nil {
		return mapErr(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid.Hex()
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*auth.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.user(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.M{"_id": oid, "active": true})
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, bson.M{"email": auth.NormalizeEmail(email), "active": true})
}

// SetTokenDigest stores a digest and expiry. An empty digest clears both fields.
func (s *Store) SetTokenDigest(ctx context.Context, userID string, kind auth.TokenKind, digest string, expires time.Time) error {
	field, expField := tokenFields(kind)
	update := bson.M{"$set": bson.M{field: digest, expField: expires.UTC(), "updatedAt": s.now().UTC()}}
	if digest == "" {
		update = bson.M{
			"$unset": bson.M{field: "", expField: ""},
			"$set":   bson.M{"updatedAt": s.now().UTC()},
		}
	}
	return s.updateUser(ctx, userID, update)
}

// ConsumeTokenDigest finds the unexpired digest and clears it in the same operation,
// so two concurrent redemptions cannot both succeed.
func (s *Store) ConsumeTokenDigest(ctx context.Context, kind auth.TokenKind, digest string, now time.Time) (*auth.User, error) {
	if digest == "" {
		return nil, auth.ErrNotFound
	}
	field, expField := tokenFields(kind)
	filter := bson.M{field: digest, expField: bson.M{"$gt": now.UTC()}, "active": true}
	update := bson.M{"$unset": bson.M{field: "", expField: ""}}
	var d userDoc
	if err := s.users.FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.user(), nil
}

// RecordFailedLogin increments the counter and sets the lock in a single pipeline update.
func (s *Store) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (*auth.User, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "loginAttempts", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$loginAttempts", 0}}}, 1,
			}}}},
			{Key: "updatedAt", Value: now.UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "lockUntil", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$loginAttempts", maxAttempts}}},
				now.Add(lockFor).UTC(),
				"$lockUntil",
			}}}},
		}}},
	}
	var d userDoc
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, pipeline, afterUpdate()).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	return d.user(), nil
}

func (s *Store) ResetLoginAttempts(ctx context.Context, userID string) error {
	return s.updateUser(ctx, userID, bson.M{
		"$set":   bson.M{"loginAttempts": 0, "updatedAt": s.now().UTC()},
		"$unset": bson.M{"lockUntil": ""},
	})
}

func (s *Store) SetPassword(ctx context.Context, userID, hash string, changedAt time.Time) error {
	return s.updateUser(ctx, userID, bson.M{"$set": bson.M{
		"password":          hash,
		"passwordChangedAt": changedAt.UTC(),
		"updatedAt":         s.now().UTC(),
	}})
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.updateUser(ctx, userID, bson.M{"$set": bson.M{"emailVerified": true, "updatedAt": s.now().UTC()}})
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, p auth.ProfileUpdate) (*auth.User, error) {
	set := bson.M{"updatedAt": s.now().UTC()}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.Department != nil {
		set["department"] = *p.Department
	}
	if p.Position != nil {
		set["position"] = *p.Position
	}
	return s.updateActive(ctx, userID, bson.M{"$set": set})
}

func (s *Store) UpdateSettings(ctx context.Context, userID string, settings auth.Settings) (*auth.User, error) {
	return s.updateActive(ctx, userID, bson.M{"$set": bson.M{"settings": settings, "updatedAt": s.now().UTC()}})
}

func (s *Store) SetTwoFactor(ctx context.Context, userID, secret string, enabled bool) error {
	set := bson.M{"settings.security.twoFactorAuth": enabled, "updatedAt": s.now().UTC()}
	update := bson.M{"$set": set}
	if secret == "" {
		update["$unset"] = bson.M{"twoFactorSecret": ""}
	} else {
		set["twoFactorSecret"] = secret
	}
	return s.updateUser(ctx, userID, update)
}

// PurgeExpired clears lapsed reset and verification digests and elapsed locks.
// It returns the number of document updates applied.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	passes := []struct {
		filter bson.M
		update bson.M
	}{
		{
			bson.M{"passwordResetExpires": bson.M{"$lte": now}},
			bson.M{"$unset": bson.M{"passwordResetToken": "", "passwordResetExpires": ""}},
		},
		{
			bson.M{"emailVerificationExpires": bson.M{"$lte": now}},
			bson.M{"$unset": bson.M{"emailVerificationToken": "", "emailVerificationExpires": ""}},
		},
		{
			bson.M{"lockUntil": bson.M{"$lte": now}},
			bson.M{"$unset": bson.M{"lockUntil": ""}, "$set": bson.M{"loginAttempts": 0}},
		},
	}
	var total int64
	for _, p := range passes {
		res, err := s.users.UpdateMany(ctx, p.filter, p.update)
		if err != nil {
			return total, err
		}
		total += res.ModifiedCount
	}
	return total, nil
}

// Deactivate hides a user from lookups.
func (s *Store) Deactivate(ctx context.Context, userID string) error {
	return s.updateUser(ctx, userID, bson.M{"$set": bson.M{"active": false, "updatedAt": s.now().UTC()}})
}

func (s *Store) updateUser(ctx context.Context, userID string, update bson.M) error {
	oid, err := objectID(userID)
	if err != nil {
		return err
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) updateActive(ctx context.Context, userID string, update bson.M) (*auth.User, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, err
	}
	var d userDoc
	err = s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid, "active": true}, update, afterUpdate()).Decode(&d)
	if err != nil {
		return nil, mapErr(err)
	}
	return d.user(), nil
}

func (s *Store) TeamIDsForUser(ctx context.Context, userID string) ([]string, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, nil
	}
	filter := bson.M{"$or": bson.A{bson.M{"leader": oid}, bson.M{"members": oid}}}
	cur, err := s.teams.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []teamDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID.Hex())
	}
	return out, nil
}
