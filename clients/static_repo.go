package clients

import (
	"sort"
)

var _ Repo = (*StaticRepo)(nil)

// StaticRepo serves clients from configuration loaded once at start up. It is
// never written after construction so it needs no locking.
type StaticRepo struct {
	clients map[string]*Client
}

func NewStaticRepo(list []*Client) *StaticRepo {
	r := &StaticRepo{clients: make(map[string]*Client, len(list))}
	for _, c := range list {
		r.clients[c.ID] = c
	}
	return r
}

func (r *StaticRepo) Get(clientID string) (*Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (r *StaticRepo) List() []*Client {
	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}
