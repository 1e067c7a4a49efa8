package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"saas-control-plane/backend/internal/events"
	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	"saas-control-plane/backend/internal/notification/delivery"
	"saas-control-plane/backend/internal/notification/domain"
)

type memNotifications struct {
	mu      sync.Mutex
	rows    []*domain.Notification
	keys    map[string]bool
	failFor string
}

func (m *memNotifications) Create(_ context.Context, n *domain.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.UserID == m.failFor {
		return false, errors.New("insert failed")
	}
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	k := n.UserID + "|" + string(n.Type) + "|" + n.DedupKey
	if m.keys[k] {
		return false, nil
	}
	m.keys[k] = true
	m.rows = append(m.rows, n)
	return true, nil
}

func (m *memNotifications) forUser(userID string) []*domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Notification
	for _, n := range m.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type prefTable map[string]map[domain.Channel]bool

func (p prefTable) PreferencesFor(_ context.Context, userID string, t domain.Type) (map[domain.Channel]bool, error) {
	return p[userID+"|"+string(t)], nil
}

type memberList []*membershipdomain.Membership

func (l memberList) ListMembershipsByOrg(_ context.Context, orgID string) ([]*membershipdomain.Membership, error) {
	var out []*membershipdomain.Membership
	for _, m := range l {
		if m.OrgID == orgID {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs map[string]delivery.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job delivery.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobs == nil {
		q.jobs = map[string]delivery.Job{}
	}
	q.jobs[job.TaskID()] = job
	return nil
}

func (q *recordingQueue) list() []delivery.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []delivery.Job
	for _, j := range q.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID() < out[j].TaskID() })
	return out
}

type fixture struct {
	store *memNotifications
	prefs prefTable
	queue *recordingQueue
	d     *Dispatcher
}

func newFixture() *fixture {
	members := memberList{
		{ID: "m-owner", UserID: "owner", OrgID: "org-1", Role: membershipdomain.RoleOwner},
		{ID: "m-admin", UserID: "admin", OrgID: "org-1", Role: membershipdomain.RoleAdmin},
		{ID: "m-member", UserID: "member", OrgID: "org-1", Role: membershipdomain.RoleMember},
		{ID: "m-viewer", UserID: "viewer", OrgID: "org-1", Role: membershipdomain.RoleViewer},
		{ID: "m-other", UserID: "outsider", OrgID: "org-2", Role: membershipdomain.RoleOwner},
	}
	f := &fixture{store: &memNotifications{}, prefs: prefTable{}, queue: &recordingQueue{}}
	f.d = New(f.store, f.prefs, members, f.queue, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return f
}

func invited() events.Event {
	return events.New("owner", "org-1", events.MemberJoinedPayload{
		MembershipID: "m-new", OrgID: "org-1", OrgName: "Acme", UserID: "invitee", Role: "admin", InvitedBy: "owner",
	})
}

func channelsOf(jobs []delivery.Job) []domain.Channel {
	var out []domain.Channel
	for _, j := range jobs {
		out = append(out, j.Channel)
	}
	return out
}

func TestHandle_InviteNotifiesInvitee(t *testing.T) {
	f := newFixture()
	if err := f.d.Handle(context.Background(), invited()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	rows := f.store.forUser("invitee")
	if len(rows) != 1 {
		t.Fatalf("invitee rows = %d, want 1", len(rows))
	}
	n := rows[0]
	if n.Type != domain.TypeInvitation || n.Priority != domain.PriorityHigh || n.OrgID != "org-1" {
		t.Errorf("notification = %+v", n)
	}
	if n.DedupKey != "organization.member_joined:membership:m-new:joined" {
		t.Errorf("DedupKey = %q", n.DedupKey)
	}
	if len(n.Channels) != 2 || n.Channels[0] != domain.ChannelInApp || n.Channels[1] != domain.ChannelEmail {
		t.Errorf("Channels = %v, want in_app and email (push is opt-in)", n.Channels)
	}
	jobs := f.queue.list()
	if len(jobs) != 1 || jobs[0].Channel != domain.ChannelEmail || jobs[0].UserID != "invitee" || jobs[0].NotificationID != n.ID {
		t.Fatalf("jobs = %+v", jobs)
	}
	if len(f.store.forUser("owner")) != 0 {
		t.Error("the inviter should not be notified")
	}
}

func TestHandle_DuplicateEventIsIdempotent(t *testing.T) {
	f := newFixture()
	e := invited()
	for i := 0; i < 3; i++ {
		if err := f.d.Handle(context.Background(), e); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	again := invited()
	if err := f.d.Handle(context.Background(), again); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := len(f.store.forUser("invitee")); got != 1 {
		t.Errorf("rows = %d, want 1 for a republished occurrence", got)
	}
	if got := len(f.queue.list()); got != 1 {
		t.Errorf("jobs = %d, want 1", got)
	}
}

func TestHandle_Preferences(t *testing.T) {
	tests := []struct {
		name     string
		prefs    map[domain.Channel]bool
		wantRow  bool
		wantJobs []domain.Channel
	}{
		{"defaults", nil, true, []domain.Channel{domain.ChannelEmail}},
		{"email off keeps in_app", map[domain.Channel]bool{domain.ChannelEmail: false}, true, nil},
		{"push opted in", map[domain.Channel]bool{domain.ChannelPush: true}, true, []domain.Channel{domain.ChannelEmail, domain.ChannelPush}},
		{"in_app off still emails", map[domain.Channel]bool{domain.ChannelInApp: false}, false, []domain.Channel{domain.ChannelEmail}},
		{"everything off", map[domain.Channel]bool{domain.ChannelInApp: false, domain.ChannelEmail: false}, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.prefs != nil {
				f.prefs["invitee|"+string(domain.TypeInvitation)] = tt.prefs
			}
			if err := f.d.Handle(context.Background(), invited()); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if got := len(f.store.forUser("invitee")) == 1; got != tt.wantRow {
				t.Errorf("in_app row = %v, want %v", got, tt.wantRow)
			}
			got := channelsOf(f.queue.list())
			if len(got) != len(tt.wantJobs) {
				t.Fatalf("jobs = %v, want %v", got, tt.wantJobs)
			}
			for i := range got {
				if got[i] != tt.wantJobs[i] {
					t.Errorf("jobs = %v, want %v", got, tt.wantJobs)
				}
			}
		})
	}
}

func TestHandle_Audiences(t *testing.T) {
	tests := []struct {
		name  string
		event events.Event
		want  []string
		typ   domain.Type
	}{
		{
			"self-service join tells owners and admins",
			events.New("member", "org-1", events.MemberJoinedPayload{MembershipID: "m-member", OrgID: "org-1", UserID: "member", Role: "member"}),
			[]string{"admin", "owner"}, domain.TypeMemberJoined,
		},
		{
			"removal skips the remover",
			events.New("admin", "org-1", events.MemberLeftPayload{MembershipID: "m-x", OrgID: "org-1", UserID: "x", RemovedBy: "admin"}),
			[]string{"owner"}, domain.TypeMemberLeft,
		},
		{
			"announcement reaches every member",
			events.New("owner", "org-1", events.SystemAnnouncementPayload{AnnouncementID: "a1", OrgID: "org-1", Title: "Maintenance", Priority: "urgent"}),
			[]string{"admin", "member", "owner", "viewer"}, domain.TypeAnnouncement,
		},
		{
			"subscription tells owners",
			events.New("owner", "org-1", events.SubscriptionCreatedPayload{SubscriptionID: "s1", OrgID: "org-1", Plan: "pro"}),
			[]string{"owner"}, domain.TypeSubscriptionCreated,
		},
		{
			"mention tells the mentioned user",
			events.New("member", "org-1", events.MentionedPayload{OrgID: "org-1", MentionedUserID: "viewer", AuthorID: "member", SubjectType: "comment", SubjectID: "c1", Excerpt: "@viewer look"}),
			[]string{"viewer"}, domain.TypeMention,
		},
		{
			"welcome",
			events.New("", "", events.UserCreatedPayload{UserID: "fresh", Name: "Fresh"}),
			[]string{"fresh"}, domain.TypeWelcome,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if err := f.d.Handle(context.Background(), tt.event); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			var got []string
			for _, n := range f.store.rows {
				if n.Type != tt.typ {
					t.Errorf("type = %q, want %q", n.Type, tt.typ)
				}
				got = append(got, n.UserID)
			}
			sort.Strings(got)
			if len(got) != len(tt.want) {
				t.Fatalf("recipients = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("recipients = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestHandle_AnnouncementPriorityOverride(t *testing.T) {
	f := newFixture()
	e := events.New("owner", "org-1", events.SystemAnnouncementPayload{AnnouncementID: "a1", OrgID: "org-1", Title: "t", Priority: "urgent"})
	if err := f.d.Handle(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if rows := f.store.forUser("member"); len(rows) != 1 || rows[0].Priority != domain.PriorityUrgent {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestHandle_InvitationCreatedIsEmailOnly(t *testing.T) {
	f := newFixture()
	e := events.New("owner", "org-1", events.InvitationCreatedPayload{
		InvitationID: "inv-1", OrgID: "org-1", OrgName: "Acme", Email: "new@example.com", Role: "member", Token: "tok",
	})
	if err := f.d.Handle(context.Background(), e); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.store.rows) != 0 {
		t.Errorf("address-only invitation created %d in_app rows", len(f.store.rows))
	}
	jobs := f.queue.list()
	if len(jobs) != 1 || jobs[0].Channel != domain.ChannelEmail || jobs[0].Email != "new@example.com" || jobs[0].UserID != "" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if len(jobs[0].Actions) != 1 || jobs[0].Actions[0].URL != "/invitations/tok" {
		t.Errorf("actions = %+v", jobs[0].Actions)
	}
}

func TestHandle_RecipientFailureIsIsolated(t *testing.T) {
	f := newFixture()
	f.store.failFor = "admin"
	e := events.New("owner", "org-1", events.SystemAnnouncementPayload{AnnouncementID: "a1", OrgID: "org-1", Title: "t"})

	err := f.d.Handle(context.Background(), e)
	if err == nil {
		t.Fatal("Handle should report the failed recipient")
	}
	if got := len(f.store.rows); got != 3 {
		t.Errorf("rows = %d, want 3 delivered despite one failure", got)
	}
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	f := newFixture()
	e := events.New("root", "", events.RoleGrantedPayload{UserID: "u", RoleSlug: "support"})
	if err := f.d.Handle(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	self := events.New("u", "org-1", events.MentionedPayload{OrgID: "org-1", MentionedUserID: "u", AuthorID: "u"})
	if err := f.d.Handle(context.Background(), self); err != nil {
		t.Fatal(err)
	}
	if len(f.store.rows) != 0 || len(f.queue.list()) != 0 {
		t.Error("unrelated events produced notifications")
	}
}

func TestNew_NilQueueSkipsExternal(t *testing.T) {
	store := &memNotifications{}
	d := New(store, prefTable{}, memberList{}, nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err := d.Handle(context.Background(), invited()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(store.rows))
	}
}

func TestRegister(t *testing.T) {
	bus := events.NewBus(events.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	defer bus.Close(context.Background())
	f := newFixture()
	if err := f.d.Register(bus); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.d.Register(bus); !errors.Is(err, events.ErrAlreadySubscribed) {
		t.Errorf("second Register = %v, want ErrAlreadySubscribed", err)
	}
}
