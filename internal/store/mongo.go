package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
)

const settingsDocID = "global"

// Mongo persists everything in a single MongoDB database, embedding logins in
// user documents and attendees in session documents.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	// txn is set when the deployment is a replica set or sharded cluster.
	txn bool
}

// NewMongo connects, pings and ensures indexes.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(5*time.Second))
	if err != nil {
		return nil, err
	}
	m := &Mongo{client: client, db: client.Database(database)}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	m.txn = m.supportsTransactions(ctx)
	return m, nil
}

func (m *Mongo) supportsTransactions(ctx context.Context) bool {
	var hello bson.M
	if err := m.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false
	}
	if _, ok := hello["setName"]; ok {
		return true
	}
	return hello["msg"] == "isdbgrid"
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "name_key", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		"sessions": {
			{Keys: bson.D{{Key: "start_time", Value: -1}}},
		},
		"admins": {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"attendance_sessions": {
			{Keys: bson.D{{Key: "start_time", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// Healthy pings the primary.
func (m *Mongo) Healthy(ctx context.Context) bool {
	if m == nil || m.client == nil {
		return false
	}
	return m.client.Ping(ctx, readpref.Primary()) == nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

func (m *Mongo) users() *mongo.Collection    { return m.db.Collection("users") }
func (m *Mongo) sessions() *mongo.Collection { return m.db.Collection("sessions") }
func (m *Mongo) settings() *mongo.Collection { return m.db.Collection("settings") }
func (m *Mongo) admins() *mongo.Collection   { return m.db.Collection("admins") }
func (m *Mongo) windows() *mongo.Collection  { return m.db.Collection("attendance_sessions") }

func noDocs(err error, notFound error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound
	}
	return err
}

func fillUser(u *attendance.User) {
	if u.Logins == nil {
		u.Logins = []attendance.Login{}
	}
}

func fillSession(s *attendance.Session) {
	if s.ExpectedAttendees == nil {
		s.ExpectedAttendees = []string{}
	}
	if s.Attendees == nil {
		s.Attendees = []attendance.Attendee{}
	}
}

func fillWindow(w *attendance.AttendanceSession) {
	if w.Attendees == nil {
		w.Attendees = []attendance.AttendanceEntry{}
	}
}

// ---------- users ----------

func (m *Mongo) CreateUser(ctx context.Context, u attendance.User) error {
	fillUser(&u)
	_, err := m.users().InsertOne(ctx, u)
	return err
}

func (m *Mongo) GetUser(ctx context.Context, id string) (attendance.User, error) {
	var u attendance.User
	if err := m.users().FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return attendance.User{}, noDocs(err, attendance.ErrNotFound)
	}
	fillUser(&u)
	return u, nil
}

func (m *Mongo) FindUserByName(ctx context.Context, nameKey string) (attendance.User, error) {
	var u attendance.User
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if err := m.users().FindOne(ctx, bson.M{"name_key": nameKey}, opts).Decode(&u); err != nil {
		return attendance.User{}, noDocs(err, attendance.ErrNotFound)
	}
	fillUser(&u)
	return u, nil
}

func (m *Mongo) ListUsers(ctx context.Context) ([]attendance.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "created_at", Value: 1}})
	cur, err := m.users().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	users := []attendance.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	for i := range users {
		fillUser(&users[i])
	}
	return users, nil
}

func (m *Mongo) UpdateUser(ctx context.Context, id string, upd attendance.UserUpdate) (attendance.User, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
		set["name_key"] = attendance.NameKey(*upd.Name)
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.MissedAttendance != nil {
		set["missed_attendance"] = *upd.MissedAttendance
	}
	if len(set) == 0 {
		return m.GetUser(ctx, id)
	}
	var u attendance.User
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := m.users().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u); err != nil {
		return attendance.User{}, noDocs(err, attendance.ErrNotFound)
	}
	fillUser(&u)
	return u, nil
}

func (m *Mongo) DeleteUser(ctx context.Context, id string) error {
	res, err := m.users().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

// AppendLogin pushes the login and bumps totals in one document update.
func (m *Mongo) AppendLogin(ctx context.Context, userID string, l attendance.Login) error {
	res, err := m.users().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$push": bson.M{"logins": l},
		"$inc":  bson.M{"total_logins": 1, "total_minutes": l.Duration / 60},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (m *Mongo) ResetUser(ctx context.Context, id string) error {
	res, err := m.users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"logins": []attendance.Login{}, "total_logins": 0, "total_minutes": 0},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

// ---------- sessions ----------

func (m *Mongo) CreateSession(ctx context.Context, s attendance.Session) error {
	fillSession(&s)
	_, err := m.sessions().InsertOne(ctx, s)
	return err
}

func (m *Mongo) GetSession(ctx context.Context, id string) (attendance.Session, error) {
	var s attendance.Session
	if err := m.sessions().FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		return attendance.Session{}, noDocs(err, attendance.ErrNotFound)
	}
	fillSession(&s)
	return s, nil
}

func (m *Mongo) ListSessions(ctx context.Context, limit int) ([]attendance.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}}).SetLimit(int64(limit))
	cur, err := m.sessions().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	sessions := []attendance.Session{}
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, err
	}
	for i := range sessions {
		fillSession(&sessions[i])
	}
	return sessions, nil
}

func (m *Mongo) DeleteSession(ctx context.Context, id string) error {
	res, err := m.sessions().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

// AddAttendee pushes a only when no attendee with the same name_key is present.
// The filter and push run as one atomic document update.
func (m *Mongo) AddAttendee(ctx context.Context, sessionID string, a attendance.Attendee) error {
	res, err := m.sessions().UpdateOne(ctx,
		bson.M{"_id": sessionID, "attendees.name_key": bson.M{"$ne": a.NameKey}},
		bson.M{"$push": bson.M{"attendees": a}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := m.sessions().CountDocuments(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return attendance.ErrAlreadyMarked
}

func (m *Mongo) CountSessionsSince(ctx context.Context, since time.Time) (int, error) {
	n, err := m.sessions().CountDocuments(ctx, bson.M{"start_time": bson.M{"$gte": since}})
	return int(n), err
}

// ---------- settings ----------

type settingsDoc struct {
	ID                  string `bson:"_id"`
	attendance.Settings `bson:",inline"`
}

func (m *Mongo) GetOrCreateSettings(ctx context.Context, defaults attendance.Settings) (attendance.Settings, error) {
	var doc settingsDoc
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := m.settings().FindOneAndUpdate(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{"$setOnInsert": bson.M{
			"session_duration":            defaults.SessionDuration,
			"default_session_name":        defaults.DefaultSessionName,
			"default_session_description": defaults.DefaultSessionDescription,
		}},
		opts,
	).Decode(&doc)
	if err != nil {
		return attendance.Settings{}, err
	}
	return doc.Settings, nil
}

func (m *Mongo) SaveSettings(ctx context.Context, s attendance.Settings) error {
	_, err := m.settings().UpdateOne(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{"$set": bson.M{
			"session_duration":            s.SessionDuration,
			"default_session_name":        s.DefaultSessionName,
			"default_session_description": s.DefaultSessionDescription,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// ---------- attendance windows ----------

func (m *Mongo) CreateWindow(ctx context.Context, w attendance.AttendanceSession) error {
	fillWindow(&w)
	_, err := m.windows().InsertOne(ctx, w)
	return err
}

func (m *Mongo) ListWindows(ctx context.Context, from, to time.Time) ([]attendance.AttendanceSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}})
	cur, err := m.windows().Find(ctx, bson.M{"start_time": bson.M{"$gte": from, "$lt": to}}, opts)
	if err != nil {
		return nil, err
	}
	windows := []attendance.AttendanceSession{}
	if err := cur.All(ctx, &windows); err != nil {
		return nil, err
	}
	for i := range windows {
		fillWindow(&windows[i])
	}
	return windows, nil
}

func (m *Mongo) LatestWindowBefore(ctx context.Context, at time.Time) (attendance.AttendanceSession, error) {
	var w attendance.AttendanceSession
	opts := options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}})
	if err := m.windows().FindOne(ctx, bson.M{"start_time": bson.M{"$lte": at}}, opts).Decode(&w); err != nil {
		return attendance.AttendanceSession{}, noDocs(err, attendance.ErrNotFound)
	}
	fillWindow(&w)
	return w, nil
}

func (m *Mongo) AddWindowEntry(ctx context.Context, windowID string, e attendance.AttendanceEntry) error {
	res, err := m.windows().UpdateOne(ctx,
		bson.M{"_id": windowID, "attendees.user_id": bson.M{"$ne": e.UserID}},
		bson.M{"$push": bson.M{"attendees": e}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := m.windows().CountDocuments(ctx, bson.M{"_id": windowID})
	if err != nil {
		return err
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

// ---------- admins ----------

func (m *Mongo) CreateAdmin(ctx context.Context, a admin.Admin) error {
	_, err := m.admins().InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return admin.ErrDuplicate
	}
	return err
}

func (m *Mongo) GetAdminByUsername(ctx context.Context, username string) (admin.Admin, error) {
	var a admin.Admin
	if err := m.admins().FindOne(ctx, bson.M{"username": username}).Decode(&a); err != nil {
		return admin.Admin{}, noDocs(err, admin.ErrNotFound)
	}
	return a, nil
}

func (m *Mongo) ListAdmins(ctx context.Context) ([]admin.Admin, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetProjection(bson.M{"password_hash": 0})
	cur, err := m.admins().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	admins := []admin.Admin{}
	if err := cur.All(ctx, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

func (m *Mongo) CountAdmins(ctx context.Context) (int, error) {
	n, err := m.admins().CountDocuments(ctx, bson.M{})
	return int(n), err
}

// DeleteAdmin refuses to remove the last admin. On replica sets the count and
// delete run in one transaction that also bumps a guard document, so concurrent
// deletes conflict and one of them is retried against the new count. Standalone
// servers have no transactions and fall back to count-then-delete.
func (m *Mongo) DeleteAdmin(ctx context.Context, id string) error {
	if !m.txn {
		return m.deleteAdmin(ctx, id)
	}
	sess, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		guard := options.Update().SetUpsert(true)
		if _, err := m.db.Collection("locks").UpdateOne(sc, bson.M{"_id": "admins"}, bson.M{"$inc": bson.M{"version": 1}}, guard); err != nil {
			return nil, err
		}
		return nil, m.deleteAdmin(sc, id)
	})
	return err
}

func (m *Mongo) deleteAdmin(ctx context.Context, id string) error {
	n, err := m.admins().CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	if n <= 1 {
		return admin.ErrLastAdmin
	}
	res, err := m.admins().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return admin.ErrNotFound
	}
	return nil
}
