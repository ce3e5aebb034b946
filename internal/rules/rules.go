// Package rules keeps the ordered list of user rules that classify newly
// arrived messages. The first active rule whose predicate matches wins.
package rules

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/store"
)

const documentVersion = 1

// document is the serialized form of the whole rule list.
type document struct {
	Version int           `yaml:"version"`
	Rules   []domain.Rule `yaml:"rules"`
}

type Options struct {
	Sink     events.Sink
	Username string
	Now      func() time.Time
}

// Collection is the rule list. It has its own lock for the list; the
// shared cache lock is only taken around store access and always before
// the list lock.
type Collection struct {
	store    store.Store
	mu       sync.Locker
	sink     events.Sink
	username string
	now      func() time.Time
	log      *logrus.Entry

	listMu sync.RWMutex
	rules  []domain.Rule
}

func New(st store.Store, mu sync.Locker, opts Options) *Collection {
	c := &Collection{
		store:    st,
		mu:       mu,
		sink:     opts.Sink,
		username: opts.Username,
		now:      opts.Now,
		log:      logrus.WithField("pkg", "rules"),
	}
	if c.sink == nil {
		c.sink = events.Discard{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Load reads the rule list. A missing blob is an empty list.
func (c *Collection) Load(ctx context.Context) error {
	c.mu.Lock()
	blob, err := c.store.LoadRules(ctx)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	var list []domain.Rule
	if len(blob) > 0 {
		if list, err = decode(blob); err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
	}

	c.listMu.Lock()
	c.rules = list
	c.listMu.Unlock()
	c.log.WithField("rules", len(list)).Debug("Loaded rules")
	return nil
}

func decode(blob []byte) ([]domain.Rule, error) {
	var doc document
	if err := yaml.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("rules version %d is newer than %d: %w", doc.Version, documentVersion, ErrInvalidRule)
	}
	for i, r := range doc.Rules {
		if err := Validate(r.Predicate); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, r.Title, err)
		}
	}
	return doc.Rules, nil
}

// All returns a copy of the rules in evaluation order.
func (c *Collection) All() []domain.Rule {
	c.listMu.RLock()
	defer c.listMu.RUnlock()
	out := make([]domain.Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = cloneRule(r)
	}
	return out
}

func (c *Collection) Len() int {
	c.listMu.RLock()
	defer c.listMu.RUnlock()
	return len(c.rules)
}

// Add appends a rule and saves the list.
func (c *Collection) Add(ctx context.Context, rule domain.Rule) error {
	return c.insert(ctx, -1, rule)
}

// Insert places a rule at index, or appends it when index is out of range.
func (c *Collection) Insert(ctx context.Context, index int, rule domain.Rule) error {
	return c.insert(ctx, index, rule)
}

func (c *Collection) insert(ctx context.Context, index int, rule domain.Rule) error {
	if err := Validate(rule.Predicate); err != nil {
		return fmt.Errorf("failed to add rule %s: %w", rule.Title, err)
	}
	c.listMu.Lock()
	if index < 0 || index > len(c.rules) {
		index = len(c.rules)
	}
	c.rules = slices.Insert(c.rules, index, cloneRule(rule))
	c.listMu.Unlock()

	if err := c.Save(ctx); err != nil {
		return err
	}
	c.sink.Publish(events.Event{Kind: events.RuleAdded, ID: int64(index), Name: rule.Title})
	return nil
}

// Update replaces the rule at index.
func (c *Collection) Update(ctx context.Context, index int, rule domain.Rule) error {
	if err := Validate(rule.Predicate); err != nil {
		return fmt.Errorf("failed to update rule %s: %w", rule.Title, err)
	}
	c.listMu.Lock()
	if index < 0 || index >= len(c.rules) {
		c.listMu.Unlock()
		return fmt.Errorf("failed to update rule %d: %w", index, domain.ErrNotFound)
	}
	c.rules[index] = cloneRule(rule)
	c.listMu.Unlock()
	return c.Save(ctx)
}

// Delete removes the rule at index.
func (c *Collection) Delete(ctx context.Context, index int) error {
	c.listMu.Lock()
	if index < 0 || index >= len(c.rules) {
		c.listMu.Unlock()
		return fmt.Errorf("failed to delete rule %d: %w", index, domain.ErrNotFound)
	}
	c.rules = slices.Delete(c.rules, index, index+1)
	c.listMu.Unlock()
	return c.Save(ctx)
}

// Reset replaces the list with the default list, which is empty.
func (c *Collection) Reset(ctx context.Context) error {
	c.listMu.Lock()
	c.rules = nil
	c.listMu.Unlock()
	return c.Save(ctx)
}

// Block puts a rule ignoring everything by username ahead of all other
// rules. Blocking an already blocked user does nothing.
func (c *Collection) Block(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("failed to block: empty username: %w", ErrInvalidRule)
	}
	rule := BlockRule(username)

	c.listMu.RLock()
	blocked := slices.ContainsFunc(c.rules, func(r domain.Rule) bool {
		p := r.Predicate
		return r.Active && r.Action == rule.Action && p.Kind == domain.ExprTerm &&
			p.Field == domain.FieldAuthor && p.Op == domain.OpEq && strings.EqualFold(p.Value, username)
	})
	c.listMu.RUnlock()
	if blocked {
		return nil
	}
	return c.insert(ctx, 0, rule)
}

// BlockRule is the rule Block inserts.
func BlockRule(username string) domain.Rule {
	return domain.Rule{
		Active:    true,
		Title:     "Block " + username,
		Predicate: domain.Term(domain.FieldAuthor, domain.OpEq, username),
		Action:    domain.ActionIgnored,
	}
}

// Save writes the whole list as one blob.
func (c *Collection) Save(ctx context.Context) error {
	c.listMu.RLock()
	blob, err := yaml.Marshal(document{Version: documentVersion, Rules: c.rules})
	c.listMu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SaveRules(ctx, blob); err != nil {
		return fmt.Errorf("failed to save rules: %w", err)
	}
	return nil
}

// ApplyRules runs the rules over a message and applies the action of the
// first active rule that matches. It reports whether a rule matched.
func (c *Collection) ApplyRules(m *domain.Message, forum, topic string) bool {
	s := c.subject(m, forum, topic)

	c.listMu.RLock()
	defer c.listMu.RUnlock()
	for _, r := range c.rules {
		if !r.Active {
			continue
		}
		if Eval(r.Predicate, s) {
			Apply(r.Action, m)
			return true
		}
	}
	return false
}

// ApplyRule reports whether one rule's predicate matches a message. The
// message is not changed.
func (c *Collection) ApplyRule(rule domain.Rule, m *domain.Message, forum, topic string) bool {
	return Eval(rule.Predicate, c.subject(m, forum, topic))
}

func (c *Collection) subject(m *domain.Message, forum, topic string) Subject {
	return Subject{Msg: m, Forum: forum, Topic: topic, Username: c.username, Now: c.now()}
}

// Export writes the list as YAML.
func (c *Collection) Export(w io.Writer) error {
	c.listMu.RLock()
	blob, err := yaml.Marshal(document{Version: documentVersion, Rules: c.rules})
	c.listMu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	if _, err := w.Write(blob); err != nil {
		return fmt.Errorf("failed to export rules: %w", err)
	}
	return nil
}

// Import replaces the list with the rules read from r. Nothing changes if
// any rule is invalid.
func (c *Collection) Import(ctx context.Context, r io.Reader) error {
	blob, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read rules: %w", err)
	}
	list, err := decode(blob)
	if err != nil {
		return fmt.Errorf("failed to import rules: %w", err)
	}

	c.listMu.Lock()
	c.rules = list
	c.listMu.Unlock()
	return c.Save(ctx)
}

func cloneRule(r domain.Rule) domain.Rule {
	r.Predicate = cloneExpr(r.Predicate)
	return r
}

func cloneExpr(e domain.Expr) domain.Expr {
	if e.Args != nil {
		args := make([]domain.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = cloneExpr(a)
		}
		e.Args = args
	}
	return e
}
