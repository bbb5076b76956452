package services

import (
	"context"
	"entryready/internal/cache"
	"entryready/internal/events"
	"entryready/internal/logger"
)

// CacheInvalidationService drops computed requirements whenever a new rule
// set is installed.
type CacheInvalidationService struct {
	eventBus    *events.EventBus
	cache       cache.RequirementsCache
	unsubscribe func()
	log         logger.Logger
}

func NewCacheInvalidationService(
	eventBus *events.EventBus,
	requirementsCache cache.RequirementsCache,
) *CacheInvalidationService {
	s := &CacheInvalidationService{
		eventBus: eventBus,
		cache:    requirementsCache,
		log:      logger.New("CacheInvalidationService"),
	}
	s.unsubscribe = eventBus.Subscribe(events.ChannelRules, s.handle)
	return s
}

func (s *CacheInvalidationService) handle(event events.Event) {
	log := s.log.Function("handle")
	if event.Type != events.TypeRulesReloaded {
		return
	}

	if err := s.cache.Clear(context.Background()); err != nil {
		log.Er("failed to clear requirements cache", err, "version", event.Data["version"])
		return
	}

	log.Info("Requirements cache invalidated", "version", event.Data["version"])
}

func (s *CacheInvalidationService) Close() {
	s.unsubscribe()
}
