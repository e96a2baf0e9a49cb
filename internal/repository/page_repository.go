package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/journal-portal/internal/model"
)

const (
	pagesCollection     = "pages"
	bookmarksCollection = "bookmarks"
	aboutCollection     = "about"
	aboutDocumentID     = "about"
	featuredPageItems   = 3
)

// PageRepo keeps the public site sections in MongoDB.
type PageRepo struct {
	pages     *mongo.Collection
	bookmarks *mongo.Collection
	about     *mongo.Collection
}

func NewPageRepo(db *mongo.Database) *PageRepo {
	return &PageRepo{
		pages:     db.Collection(pagesCollection),
		bookmarks: db.Collection(bookmarksCollection),
		about:     db.Collection(aboutCollection),
	}
}

// EnsureIndexes creates the listing index and the unique bookmark index.
func (r *PageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.pages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "category", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("pages indexes: %w", err)
	}
	_, err = r.bookmarks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "itemId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("bookmarks index: %w", err)
	}
	return nil
}

// List returns one page of items of q.Kind together with the section's
// categories and featured items.
func (r *PageRepo) List(ctx context.Context, q model.PageQuery) (model.PageList, error) {
	page, limit, offset := pageBounds(q.Page, q.Limit, 10, 50)
	filter := bson.M{"kind": q.Kind}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": rx},
			bson.M{"description": rx},
			bson.M{"content": rx},
			bson.M{"tags": rx},
		}
	}

	total, err := r.pages.CountDocuments(ctx, filter)
	if err != nil {
		return model.PageList{}, fmt.Errorf("count pages: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return model.PageList{}, err
	}
	featured, err := r.find(ctx, bson.M{"kind": q.Kind, "featured": true},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(featuredPageItems))
	if err != nil {
		return model.PageList{}, err
	}
	categories, err := r.categories(ctx, q.Kind)
	if err != nil {
		return model.PageList{}, err
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return model.PageList{
		Items:       items,
		Categories:  categories,
		Featured:    featured,
		TotalPages:  pages,
		CurrentPage: page,
		Total:       total,
	}, nil
}

func (r *PageRepo) find(ctx context.Context, filter any, opts *options.FindOptions) ([]model.PageItem, error) {
	cur, err := r.pages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find pages: %w", err)
	}
	out := []model.PageItem{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return out, nil
}

func (r *PageRepo) categories(ctx context.Context, kind model.PageKind) ([]string, error) {
	raw, err := r.pages.Distinct(ctx, "category", bson.M{"kind": kind})
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

func objectID(hex string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func (r *PageRepo) Get(ctx context.Context, kind model.PageKind, id string) (model.PageItem, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.PageItem{}, err
	}
	var it model.PageItem
	if err := r.pages.FindOne(ctx, bson.M{"_id": oid, "kind": kind}).Decode(&it); err != nil {
		return model.PageItem{}, translate(err)
	}
	return it, nil
}

func (r *PageRepo) Create(ctx context.Context, it *model.PageItem) error {
	now := time.Now().UTC()
	it.ID = primitive.NewObjectID()
	it.CreatedAt, it.UpdatedAt = now, now
	if _, err := r.pages.InsertOne(ctx, it); err != nil {
		return translate(err)
	}
	return nil
}

// Update replaces the item, keeping its id, kind, members and creation time.
func (r *PageRepo) Update(ctx context.Context, kind model.PageKind, id string, it *model.PageItem) error {
	cur, err := r.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	it.ID, it.Kind, it.CreatedAt = cur.ID, cur.Kind, cur.CreatedAt
	it.Members = cur.Members
	it.UpdatedAt = time.Now().UTC()
	res, err := r.pages.ReplaceOne(ctx, bson.M{"_id": cur.ID, "kind": kind}, it)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the item and every bookmark pointing at it.
func (r *PageRepo) Delete(ctx context.Context, kind model.PageKind, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.pages.DeleteOne(ctx, bson.M{"_id": oid, "kind": kind})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	_, err = r.bookmarks.DeleteMany(ctx, bson.M{"itemId": oid})
	return err
}

type bookmark struct {
	UserID    uint64             `bson:"userId"`
	ItemID    primitive.ObjectID `bson:"itemId"`
	Kind      model.PageKind     `bson:"kind"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// ToggleBookmark flips the user's bookmark on an item and reports whether
// the item is bookmarked afterwards.
func (r *PageRepo) ToggleBookmark(ctx context.Context, userID uint64, kind model.PageKind, id string) (bool, error) {
	it, err := r.Get(ctx, kind, id)
	if err != nil {
		return false, err
	}
	res, err := r.bookmarks.DeleteOne(ctx, bson.M{"userId": userID, "itemId": it.ID})
	if err != nil {
		return false, err
	}
	if res.DeletedCount > 0 {
		return false, nil
	}
	_, err = r.bookmarks.InsertOne(ctx, bookmark{UserID: userID, ItemID: it.ID, Kind: kind, CreatedAt: time.Now().UTC()})
	if err != nil && !errors.Is(translate(err), ErrDuplicate) {
		return false, err
	}
	return true, nil
}

// JoinChannel adds userID to the channel's members. A private channel
// only accepts users who are already members.
func (r *PageRepo) JoinChannel(ctx context.Context, id string, userID uint64) (model.PageItem, error) {
	ch, err := r.Get(ctx, model.PageChannels, id)
	if err != nil {
		return model.PageItem{}, err
	}
	if ch.Type == "private" && !containsID(ch.Members, userID) {
		return model.PageItem{}, ErrForbidden
	}
	return r.updateMembers(ctx, ch.ID, bson.M{"$addToSet": bson.M{"members": userID}})
}

func (r *PageRepo) LeaveChannel(ctx context.Context, id string, userID uint64) (model.PageItem, error) {
	ch, err := r.Get(ctx, model.PageChannels, id)
	if err != nil {
		return model.PageItem{}, err
	}
	return r.updateMembers(ctx, ch.ID, bson.M{"$pull": bson.M{"members": userID}})
}

func (r *PageRepo) updateMembers(ctx context.Context, oid primitive.ObjectID, update bson.M) (model.PageItem, error) {
	update["$set"] = bson.M{"updatedAt": time.Now().UTC()}
	var out model.PageItem
	err := r.pages.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	if err != nil {
		return model.PageItem{}, translate(err)
	}
	return out, nil
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// GetAbout returns the about document, or an empty one if none was saved.
func (r *PageRepo) GetAbout(ctx context.Context) (model.AboutContent, error) {
	var a model.AboutContent
	err := r.about.FindOne(ctx, bson.M{"_id": aboutDocumentID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.AboutContent{}, nil
	}
	return a, err
}

func (r *PageRepo) PutAbout(ctx context.Context, a *model.AboutContent) error {
	a.UpdatedAt = time.Now().UTC()
	_, err := r.about.ReplaceOne(ctx, bson.M{"_id": aboutDocumentID}, a, options.Replace().SetUpsert(true))
	return err
}
