package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaychat/relay/internal/apperr"
	"github.com/relaychat/relay/internal/domain"
)

type fakeMessages struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*domain.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byKey: make(map[string]*domain.Message)}
}

func msgKey(channelID string, id int64) string {
	return fmt.Sprintf("%s/%d", channelID, id)
}

func (f *fakeMessages) Create(_ context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	m.Timestamp = time.Now().UTC()
	cp := *m
	f.byKey[msgKey(m.ChannelID, m.ID)] = &cp
	return nil
}

func (f *fakeMessages) Get(_ context.Context, channelID string, id int64) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byKey[msgKey(channelID, id)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) UpdateContent(_ context.Context, channelID string, id int64, authorID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byKey[msgKey(channelID, id)]
	if !ok || m.Author == nil || m.Author.ID != authorID {
		return apperr.ErrNotFound
	}
	m.Content = content
	return nil
}

func (f *fakeMessages) Delete(_ context.Context, channelID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := msgKey(channelID, id)
	if _, ok := f.byKey[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.byKey, key)
	return nil
}

func (f *fakeMessages) Fetch(_ context.Context, channelID string, count int, after, before *time.Time) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.byKey {
		if m.ChannelID != channelID {
			continue
		}
		if after != nil && !m.Timestamp.After(*after) {
			continue
		}
		if before != nil && !m.Timestamp.Before(*before) {
			continue
		}
		out = append(out, *m)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

type fakeAccess struct {
	allowed map[string]bool // userID+"/"+channelID
}

func allowAll() *fakeAccess { return &fakeAccess{} }

func (f *fakeAccess) CanAccess(_ context.Context, userID, channelID string) (bool, error) {
	if f.allowed == nil {
		return true, nil
	}
	return f.allowed[userID+"/"+channelID], nil
}

type fakeProfiles struct{}

func (fakeProfiles) Profile(_ context.Context, userID string) (*domain.Profile, error) {
	return &domain.Profile{ID: userID, Name: "user " + userID}, nil
}

type fakeReads struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newFakeReads() *fakeReads { return &fakeReads{seen: make(map[string]time.Time)} }

func (f *fakeReads) SetLastRead(_ context.Context, userID, channelID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[userID+"/"+channelID] = at
	return nil
}

func (f *fakeReads) LastReadMany(_ context.Context, userID string, channelIDs []string) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Time)
	for _, ch := range channelIDs {
		if at, ok := f.seen[userID+"/"+ch]; ok {
			out[ch] = at
		}
	}
	return out, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (f *fakeArchive) Record(_ context.Context, msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

type fakeGroups struct {
	mu      sync.Mutex
	nextID  int
	groups  map[string]*domain.Group
	members map[string]map[string]bool // groupID -> userID -> admin
	invites map[string]string          // code -> groupID
	dms     map[string]*domain.DMChannel
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{
		groups:  make(map[string]*domain.Group),
		members: make(map[string]map[string]bool),
		invites: make(map[string]string),
		dms:     make(map[string]*domain.DMChannel),
	}
}

func (f *fakeGroups) Create(_ context.Context, g *domain.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	g.ID = fmt.Sprintf("group-%d", f.nextID)
	g.ChannelID = fmt.Sprintf("chan-%d", f.nextID)
	g.CreatedAt = time.Now().UTC()
	cp := *g
	f.groups[g.ID] = &cp
	f.members[g.ID] = map[string]bool{g.OwnerID: true}
	return nil
}

func (f *fakeGroups) Get(_ context.Context, id string) (*domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGroups) Update(_ context.Context, g *domain.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[g.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *g
	f.groups[g.ID] = &cp
	return nil
}

func (f *fakeGroups) Delete(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[id]; !ok {
		return nil, apperr.ErrNotFound
	}
	var uids []string
	for uid := range f.members[id] {
		uids = append(uids, uid)
	}
	delete(f.groups, id)
	delete(f.members, id)
	return uids, nil
}

func (f *fakeGroups) AddMember(_ context.Context, groupID, userID string, admin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[groupID]
	if !ok {
		return apperr.ErrNotFound
	}
	if _, exists := m[userID]; !exists {
		m[userID] = admin
	}
	return nil
}

func (f *fakeGroups) RemoveMember(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[groupID]
	if !ok {
		return apperr.ErrNotFound
	}
	delete(m, userID)
	return nil
}

func (f *fakeGroups) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[groupID][userID]
	return ok, nil
}

func (f *fakeGroups) IsAdmin(_ context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID][userID], nil
}

func (f *fakeGroups) MemberIDs(_ context.Context, groupID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for uid := range f.members[groupID] {
		out = append(out, uid)
	}
	return out, nil
}

func (f *fakeGroups) GroupsOf(_ context.Context, userID string) ([]domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Group
	for gid, m := range f.members {
		if _, ok := m[userID]; ok {
			out = append(out, *f.groups[gid])
		}
	}
	return out, nil
}

func (f *fakeGroups) CreateInvite(_ context.Context, groupID string) (*domain.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := fmt.Sprintf("inv-%s-%d", groupID, len(f.invites)+1)
	f.invites[code] = groupID
	return &domain.Invite{Code: code, GroupID: groupID, CreatedAt: time.Now().UTC()}, nil
}

func (f *fakeGroups) InviteByCode(_ context.Context, code string) (*domain.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gid, ok := f.invites[code]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &domain.Invite{Code: code, GroupID: gid}, nil
}

func dmKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm-" + a + "-" + b
}

func (f *fakeGroups) OpenDM(_ context.Context, a, b string) (*domain.DMChannel, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := dmKey(a, b)
	if d, ok := f.dms[id]; ok {
		wasOpen := !d.Closed
		d.Closed = false
		cp := *d
		return &cp, wasOpen, nil
	}
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	d := &domain.DMChannel{ID: id, UserIDs: [2]string{lo, hi}, CreatedAt: time.Now().UTC()}
	f.dms[id] = d
	cp := *d
	return &cp, false, nil
}

func (f *fakeGroups) GetDM(_ context.Context, channelID string) (*domain.DMChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dms[channelID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeGroups) CloseDM(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dms[channelID]
	if !ok {
		return apperr.ErrNotFound
	}
	d.Closed = true
	return nil
}

func (f *fakeGroups) DMsOf(_ context.Context, userID string) ([]domain.DMChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DMChannel
	for _, d := range f.dms {
		if !d.Closed && d.Peer(userID) != "" {
			out = append(out, *d)
		}
	}
	return out, nil
}
