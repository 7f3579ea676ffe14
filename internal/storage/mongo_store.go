package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/bike-help/internal/models"
)

// Compile-time checks that MongoStore covers both interfaces.
var (
	_ PointStore = (*MongoStore)(nil)
	_ UserStore  = (*MongoStore)(nil)
)

// MongoStore persists points and profiles in MongoDB. Scores are mutated
// exclusively through $inc and ride membership through $addToSet/$pull, so
// concurrent joins and unjoins cannot lose updates or duplicate riders.
type MongoStore struct {
	client *mongo.Client
	points *mongo.Collection
	users  *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	db := client.Database(dbName)
	return &MongoStore{
		client: client,
		points: db.Collection("points"),
		users:  db.Collection("users"),
	}, nil
}

func (s *MongoStore) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// pointDoc is the document-store shape of a map point. Required fields are
// pointers so a missing value is distinguishable from a zero value.
type pointDoc struct {
	ID          string    `bson:"_id"`
	Name        *string   `bson:"name"`
	Description *string   `bson:"description"`
	Category    string    `bson:"category,omitempty"`
	Location    *coordDoc `bson:"location"`
	Icon        int       `bson:"icon"`
	ImageURI    string    `bson:"imageUri,omitempty"`
	CreatorID   *string   `bson:"creatorId"`
	Ride        bool      `bson:"ride"`
	Start       string    `bson:"start,omitempty"`
	Riders      []string  `bson:"riders,omitempty"`
	CreatedAt   time.Time `bson:"createdAt,omitempty"`
}

type coordDoc struct {
	Lat float64 `bson:"lat"`
	Lon float64 `bson:"lon"`
}

// toModel converts a stored document, reporting false for malformed records
// missing a required field. A bad record is dropped from the working set
// without affecting the rest of the batch.
func (d *pointDoc) toModel() (models.MapPoint, bool) {
	if d.Location == nil || d.Name == nil || d.Description == nil || d.CreatorID == nil {
		return models.MapPoint{}, false
	}
	p := models.MapPoint{
		ID:          d.ID,
		Name:        *d.Name,
		Description: *d.Description,
		Category:    d.Category,
		Loc:         models.Coord{Lat: d.Location.Lat, Lon: d.Location.Lon},
		Icon:        d.Icon,
		ImageURL:    d.ImageURI,
		CreatorID:   *d.CreatorID,
		Ride:        d.Ride,
		Riders:      d.Riders,
		CreatedAt:   d.CreatedAt,
	}
	if d.Start != "" {
		if t, err := time.Parse(models.StartLayout, d.Start); err == nil {
			p.Start = &t
		}
	}
	return p, true
}

func docFromModel(p *models.MapPoint) *pointDoc {
	d := &pointDoc{
		ID:          p.ID,
		Name:        &p.Name,
		Description: &p.Description,
		Category:    p.Category,
		Location:    &coordDoc{Lat: p.Loc.Lat, Lon: p.Loc.Lon},
		Icon:        p.Icon,
		ImageURI:    p.ImageURL,
		CreatorID:   &p.CreatorID,
		Ride:        p.Ride,
		Riders:      p.Riders,
		CreatedAt:   p.CreatedAt,
	}
	if p.Start != nil {
		d.Start = p.Start.Format(models.StartLayout)
	}
	return d
}

func (s *MongoStore) CreatePoint(ctx context.Context, p *models.MapPoint) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	if _, err := s.points.InsertOne(ctx, docFromModel(p)); err != nil {
		return err
	}
	return s.AddScore(ctx, p.CreatorID, ScoreCreatePoint)
}

func (s *MongoStore) GetPoint(ctx context.Context, id string) (*models.MapPoint, error) {
	var d pointDoc
	err := s.points.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p, ok := d.toModel()
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MongoStore) ListPoints(ctx context.Context) ([]models.MapPoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.points.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []models.MapPoint
	for cursor.Next(ctx) {
		var d pointDoc
		if err := cursor.Decode(&d); err != nil {
			continue
		}
		if p, ok := d.toModel(); ok {
			out = append(out, p)
		}
	}
	return out, cursor.Err()
}

func (s *MongoStore) DeletePoint(ctx context.Context, id, requesterID string) error {
	p, err := s.GetPoint(ctx, id)
	if err != nil {
		return err
	}
	if p.CreatorID != requesterID {
		return ErrNotCreator
	}
	if p.Ride {
		for _, rider := range p.Riders {
			if err := s.AddScore(ctx, rider, ScoreRideDeleted); err != nil {
				return err
			}
		}
		if err := s.AddScore(ctx, p.CreatorID, ScoreRideOwner); err != nil {
			return err
		}
	}
	_, err = s.points.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) JoinRide(ctx context.Context, id, userID string) error {
	res, err := s.points.UpdateOne(ctx,
		bson.M{"_id": id, "ride": true},
		bson.M{"$addToSet": bson.M{"riders": userID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.classifyRideMiss(ctx, id)
	}
	if res.ModifiedCount == 0 {
		return nil // already joined, score unchanged
	}
	return s.AddScore(ctx, userID, ScoreJoinRide)
}

func (s *MongoStore) LeaveRide(ctx context.Context, id, userID string) error {
	res, err := s.points.UpdateOne(ctx,
		bson.M{"_id": id, "ride": true},
		bson.M{"$pull": bson.M{"riders": userID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.classifyRideMiss(ctx, id)
	}
	if res.ModifiedCount == 0 {
		return nil // was not a member
	}
	return s.AddScore(ctx, userID, ScoreLeaveRide)
}

// classifyRideMiss distinguishes "no such point" from "not a ride" after a
// membership update matched nothing.
func (s *MongoStore) classifyRideMiss(ctx context.Context, id string) error {
	n, err := s.points.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrNotRide
}

func (s *MongoStore) JoinedRides(ctx context.Context, userID string) ([]models.MapPoint, error) {
	cursor, err := s.points.Find(ctx, bson.M{"ride": true, "riders": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []models.MapPoint
	for cursor.Next(ctx) {
		var d pointDoc
		if err := cursor.Decode(&d); err != nil {
			continue
		}
		if p, ok := d.toModel(); ok {
			out = append(out, p)
		}
	}
	return out, cursor.Err()
}

func (s *MongoStore) Categories(ctx context.Context) ([]string, error) {
	raw, err := s.points.Distinct(ctx, "category", bson.M{"category": bson.M{"$ne": ""}})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (s *MongoStore) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	now := time.Now()
	p.UpdatedAt = now
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": p.ID},
		bson.M{
			"$set": bson.M{
				"fullName":    p.FullName,
				"phoneNumber": p.PhoneNumber,
				"email":       p.Email,
				"photoUrl":    p.PhotoURL,
				"updatedAt":   now,
			},
			"$setOnInsert": bson.M{"score": 0, "createdAt": now},
		},
		options.Update().SetUpsert(true))
	return err
}

type userDoc struct {
	ID          string    `bson:"_id"`
	FullName    string    `bson:"fullName"`
	PhoneNumber string    `bson:"phoneNumber"`
	Email       string    `bson:"email"`
	PhotoURL    string    `bson:"photoUrl,omitempty"`
	Score       int       `bson:"score"`
	CreatedAt   time.Time `bson:"createdAt,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty"`
}

func (d *userDoc) toModel() models.UserProfile {
	return models.UserProfile{
		ID:          d.ID,
		FullName:    d.FullName,
		PhoneNumber: d.PhoneNumber,
		Email:       d.Email,
		PhotoURL:    d.PhotoURL,
		Score:       d.Score,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (s *MongoStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	var d userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := d.toModel()
	return &p, nil
}

// AddScore applies an atomic increment, creating a skeleton profile when the
// user has no document yet.
func (s *MongoStore) AddScore(ctx context.Context, id string, delta int) error {
	if id == "" {
		return nil
	}
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc":         bson.M{"score": delta},
			"$set":         bson.M{"updatedAt": time.Now()},
			"$setOnInsert": bson.M{"createdAt": time.Now()},
		},
		options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) Leaderboard(ctx context.Context, limit int) ([]models.UserProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "score", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []models.UserProfile
	for cursor.Next(ctx) {
		var d userDoc
		if err := cursor.Decode(&d); err != nil {
			continue
		}
		out = append(out, d.toModel())
	}
	return out, cursor.Err()
}

// Watch opens a change stream over the points collection and signals on the
// returned channel for every change. Callers fall back to polling when the
// deployment does not support change streams.
func (s *MongoStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	stream, err := s.points.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, err
	}
	ch := make(chan struct{}, 1)
	go func() {
		defer stream.Close(context.Background())
		defer close(ch)
		for stream.Next(ctx) {
			select {
			case ch <- struct{}{}:
			default: // a refresh is already pending
			}
		}
	}()
	return ch, nil
}
