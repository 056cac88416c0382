package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaychat/relay/internal/domain"
)

// GroupRepo persists groups, their member lists, invites and DM channels.
type GroupRepo struct {
	groups  *mongo.Collection
	members *mongo.Collection
	invites *mongo.Collection
	dms     *mongo.Collection
}

func NewGroupRepo(db *mongo.Database) *GroupRepo {
	members := db.Collection("members")
	_, _ = members.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("group_user_idx"),
	})
	return &GroupRepo{
		groups:  db.Collection("groups"),
		members: members,
		invites: db.Collection("invites"),
		dms:     db.Collection("dm_channels"),
	}
}

func (r *GroupRepo) Create(ctx context.Context, g *domain.Group) error {
	g.ID = uuid.NewString()
	g.ChannelID = uuid.NewString()
	g.CreatedAt = time.Now().UTC()
	if _, err := r.groups.InsertOne(ctx, g); err != nil {
		return err
	}
	return r.AddMember(ctx, g.ID, g.OwnerID, true)
}

func (r *GroupRepo) Get(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	err := r.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GroupByChannel resolves the group owning a chat channel id.
func (r *GroupRepo) GroupByChannel(ctx context.Context, channelID string) (*domain.Group, error) {
	var g domain.Group
	err := r.groups.FindOne(ctx, bson.M{"channel_id": channelID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepo) Update(ctx context.Context, g *domain.Group) error {
	res, err := r.groups.UpdateByID(ctx, g.ID, bson.M{"$set": bson.M{
		"name":   g.Name,
		"icon":   g.Icon,
		"public": g.Public,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the group with its members and invites. Returns the member
// user ids that lost the group, for fanout to private channels.
func (r *GroupRepo) Delete(ctx context.Context, id string) ([]string, error) {
	userIDs, err := r.MemberIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.groups.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return nil, err
	}
	_, _ = r.members.DeleteMany(ctx, bson.M{"group_id": id})
	_, _ = r.invites.DeleteMany(ctx, bson.M{"group_id": id})
	return userIDs, nil
}

func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID string, admin bool) error {
	_, err := r.members.UpdateOne(ctx,
		bson.M{"group_id": groupID, "user_id": userID},
		bson.M{"$setOnInsert": domain.Member{
			GroupID:  groupID,
			UserID:   userID,
			Admin:    admin,
			JoinedAt: time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.members.DeleteOne(ctx, bson.M{"group_id": groupID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	err := r.members.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *GroupRepo) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	var m domain.Member
	err := r.members.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Admin, nil
}

// MemberIDs returns every member's user id for a group.
func (r *GroupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	cur, err := r.members.Find(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ms []domain.Member
	if err := cur.All(ctx, &ms); err != nil {
		return nil, err
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.UserID
	}
	return out, nil
}

// GroupsOf returns every group userID belongs to.
func (r *GroupRepo) GroupsOf(ctx context.Context, userID string) ([]domain.Group, error) {
	cur, err := r.members.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ms []domain.Member
	if err := cur.All(ctx, &ms); err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.GroupID
	}
	gcur, err := r.groups.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer gcur.Close(ctx)
	var out []domain.Group
	if err := gcur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GroupRepo) CreateInvite(ctx context.Context, groupID string) (*domain.Invite, error) {
	inv := domain.Invite{
		Code:      uuid.NewString(),
		GroupID:   groupID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.invites.InsertOne(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *GroupRepo) InviteByCode(ctx context.Context, code string) (*domain.Invite, error) {
	var inv domain.Invite
	err := r.invites.FindOne(ctx, bson.M{"_id": code}).Decode(&inv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// OpenDM finds or creates the DM channel between two users. The second
// return value reports whether the channel was already open. A closed
// channel is reopened in place so its id, and with it the message history,
// survives the close.
func (r *GroupRepo) OpenDM(ctx context.Context, a, b string) (*domain.DMChannel, bool, error) {
	// canonical participant order keeps the pair unique
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	var d domain.DMChannel
	err := r.dms.FindOne(ctx, bson.M{"user_ids": bson.A{lo, hi}}).Decode(&d)
	if err == nil {
		if !d.Closed {
			return &d, true, nil
		}
		if _, err := r.dms.UpdateByID(ctx, d.ID, bson.M{"$unset": bson.M{"closed": ""}}); err != nil {
			return nil, false, err
		}
		d.Closed = false
		return &d, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
	}
	d = domain.DMChannel{
		ID:        uuid.NewString(),
		UserIDs:   [2]string{lo, hi},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.dms.InsertOne(ctx, d); err != nil {
		return nil, false, err
	}
	return &d, false, nil
}

func (r *GroupRepo) GetDM(ctx context.Context, channelID string) (*domain.DMChannel, error) {
	var d domain.DMChannel
	err := r.dms.FindOne(ctx, bson.M{"_id": channelID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CloseDM hides the channel. The document stays so the message history is
// still reachable and a later OpenDM for the pair reuses the same id.
func (r *GroupRepo) CloseDM(ctx context.Context, channelID string) error {
	res, err := r.dms.UpdateByID(ctx, channelID, bson.M{"$set": bson.M{"closed": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DMsOf returns every open DM channel userID participates in. Closed
// channels are hidden from the listing.
func (r *GroupRepo) DMsOf(ctx context.Context, userID string) ([]domain.DMChannel, error) {
	cur, err := r.dms.Find(ctx, bson.M{"user_ids": userID, "closed": bson.M{"$ne": true}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []domain.DMChannel
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
