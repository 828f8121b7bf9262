package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/audit"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/rabbit"
	"github.com/rabbitdeck/backend/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// moveFetchBatch messages pulled per round while moving between queues.
const moveFetchBatch = 100

// ClusterOpsService proxies RabbitMQ operations for a managed cluster. Every
// mutating call goes through the audit interceptor; reads pass straight
// through.
type ClusterOpsService struct {
	clusterRepo repository.ClusterRepository
	rabbit      *rabbit.Client
	interceptor *audit.Interceptor
	logger      *zap.Logger
}

// NewClusterOpsService creates the cluster operations service
func NewClusterOpsService(
	clusterRepo repository.ClusterRepository,
	rabbitClient *rabbit.Client,
	interceptor *audit.Interceptor,
	logger *zap.Logger,
) *ClusterOpsService {
	return &ClusterOpsService{
		clusterRepo: clusterRepo,
		rabbit:      rabbitClient,
		interceptor: interceptor,
		logger:      logger,
	}
}

// resolve loads the cluster and checks the principal's assignment to it.
func (s *ClusterOpsService) resolve(ctx context.Context, principal *domain.User, clusterID uuid.UUID) (*domain.Cluster, error) {
	cluster, err := s.clusterRepo.FindByID(ctx, clusterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClusterNotFound
		}
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}
	if !principal.CanAccessCluster(cluster.ID) {
		return nil, ErrAccessDenied
	}
	return cluster, nil
}

func actorOf(principal *domain.User) audit.Actor {
	return audit.Actor{ID: principal.ID, Username: principal.Username}
}

func refOf(cluster *domain.Cluster) audit.ClusterRef {
	return audit.ClusterRef{ID: cluster.ID, Name: cluster.Name}
}

// --- reads (no interception) ---

// Overview returns the cluster overview
func (s *ClusterOpsService) Overview(ctx context.Context, principal *domain.User, clusterID uuid.UUID) (map[string]interface{}, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return nil, err
	}
	return s.rabbit.Overview(ctx, cluster)
}

// ListConnections lists client connections
func (s *ClusterOpsService) ListConnections(ctx context.Context, principal *domain.User, clusterID uuid.UUID) ([]map[string]interface{}, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return nil, err
	}
	return s.rabbit.ListConnections(ctx, cluster)
}

// ListChannels lists open channels
func (s *ClusterOpsService) ListChannels(ctx context.Context, principal *domain.User, clusterID uuid.UUID) ([]map[string]interface{}, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return nil, err
	}
	return s.rabbit.ListChannels(ctx, cluster)
}

// ListExchanges lists exchanges
func (s *ClusterOpsService) ListExchanges(ctx context.Context, principal *domain.User, clusterID uuid.UUID) ([]map[string]interface{}, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return nil, err
	}
	return s.rabbit.ListExchanges(ctx, cluster)
}

// ListQueues lists queues
func (s *ClusterOpsService) ListQueues(ctx context.Context, principal *domain.User, clusterID uuid.UUID) ([]map[string]interface{}, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return nil, err
	}
	return s.rabbit.ListQueues(ctx, cluster)
}

// --- writes (every one intercepted) ---

// CreateExchange declares an exchange
func (s *ClusterOpsService) CreateExchange(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, name string, settings rabbit.ExchangeSettings) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}
	op := audit.Operation{
		Type:         domain.OpCreateExchange,
		ResourceType: domain.ResourceExchange,
		ResourceName: name,
		Details: domain.JSONB{
			"vhost":       vhost,
			"type":        settings.Type,
			"durable":     settings.Durable,
			"auto_delete": settings.AutoDelete,
			"internal":    settings.Internal,
			"arguments":   settings.Arguments,
		},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.PutExchange(ctx, cluster, vhost, name, settings)
	})
}

// DeleteExchange removes an exchange
func (s *ClusterOpsService) DeleteExchange(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, name string) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}
	op := audit.Operation{
		Type:         domain.OpDeleteExchange,
		ResourceType: domain.ResourceExchange,
		ResourceName: name,
		Details:      domain.JSONB{"vhost": vhost},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.DeleteExchange(ctx, cluster, vhost, name)
	})
}

// CreateQueue declares a queue
func (s *ClusterOpsService) CreateQueue(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, name string, settings rabbit.QueueSettings) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}
	op := audit.Operation{
		Type:         domain.OpCreateQueue,
		ResourceType: domain.ResourceQueue,
		ResourceName: name,
		Details: domain.JSONB{
			"vhost":       vhost,
			"durable":     settings.Durable,
			"auto_delete": settings.AutoDelete,
			"arguments":   settings.Arguments,
		},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.PutQueue(ctx, cluster, vhost, name, settings)
	})
}

// DeleteQueue removes a queue
func (s *ClusterOpsService) DeleteQueue(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, name string) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}
	op := audit.Operation{
		Type:         domain.OpDeleteQueue,
		ResourceType: domain.ResourceQueue,
		ResourceName: name,
		Details:      domain.JSONB{"vhost": vhost},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.DeleteQueue(ctx, cluster, vhost, name)
	})
}

// PurgeQueue drops all ready messages from a queue
func (s *ClusterOpsService) PurgeQueue(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, name string) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}
	op := audit.Operation{
		Type:         domain.OpPurgeQueue,
		ResourceType: domain.ResourceQueue,
		ResourceName: name,
		Details:      domain.JSONB{"vhost": vhost},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.PurgeQueue(ctx, cluster, vhost, name)
	})
}

// CreateBinding binds a source exchange to a destination exchange or queue
func (s *ClusterOpsService) CreateBinding(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, source, destination string, destIsQueue bool, routingKey string, args map[string]interface{}) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}

	opType := domain.OpCreateBindingExchange
	destType := "e"
	if destIsQueue {
		opType = domain.OpCreateBindingQueue
		destType = "q"
	}
	op := audit.Operation{
		Type:         opType,
		ResourceType: domain.ResourceBinding,
		ResourceName: source + "->" + destination,
		Details: domain.JSONB{
			"vhost":       vhost,
			"source":      source,
			"destination": destination,
			"routing_key": routingKey,
			"arguments":   args,
		},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.CreateBinding(ctx, cluster, vhost, source, destType, destination, routingKey, args)
	})
}

// DeleteBinding removes one binding
func (s *ClusterOpsService) DeleteBinding(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, source, destination string, destIsQueue bool, propertiesKey string) error {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return err
	}

	destType := "e"
	if destIsQueue {
		destType = "q"
	}
	op := audit.Operation{
		Type:         domain.OpDeleteBinding,
		ResourceType: domain.ResourceBinding,
		ResourceName: source + "->" + destination,
		Details: domain.JSONB{
			"vhost":          vhost,
			"source":         source,
			"destination":    destination,
			"properties_key": propertiesKey,
		},
	}
	return s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		return s.rabbit.DeleteBinding(ctx, cluster, vhost, source, destType, destination, propertiesKey)
	})
}

// PublishToExchange publishes one message through an exchange and reports
// whether it was routed anywhere
func (s *ClusterOpsService) PublishToExchange(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, exchange, routingKey, payload string, properties map[string]interface{}) (bool, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return false, err
	}

	var routed bool
	op := audit.Operation{
		Type:         domain.OpPublishMessageExchange,
		ResourceType: domain.ResourceMessage,
		ResourceName: exchange,
		Details: domain.JSONB{
			"vhost":        vhost,
			"exchange":     exchange,
			"routing_key":  routingKey,
			"payload_size": len(payload),
		},
	}
	err = s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		var innerErr error
		routed, innerErr = s.rabbit.Publish(ctx, cluster, vhost, exchange, routingKey, payload, properties)
		return innerErr
	})
	return routed, err
}

// PublishToQueue publishes one message directly to a queue via the default
// exchange
func (s *ClusterOpsService) PublishToQueue(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, queue, payload string, properties map[string]interface{}) (bool, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return false, err
	}

	var routed bool
	op := audit.Operation{
		Type:         domain.OpPublishMessageQueue,
		ResourceType: domain.ResourceMessage,
		ResourceName: queue,
		Details: domain.JSONB{
			"vhost":        vhost,
			"queue":        queue,
			"payload_size": len(payload),
		},
	}
	err = s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		var innerErr error
		// default exchange routes by queue name
		routed, innerErr = s.rabbit.Publish(ctx, cluster, vhost, "", queue, payload, properties)
		return innerErr
	})
	return routed, err
}

// MoveMessages drains up to maxCount messages from the source queue and
// republishes them to the destination via the default exchange. The records'
// details carry the counts at move time.
func (s *ClusterOpsService) MoveMessages(ctx context.Context, principal *domain.User, clusterID uuid.UUID, vhost, source, destination string, maxCount int) (int, error) {
	cluster, err := s.resolve(ctx, principal, clusterID)
	if err != nil {
		return 0, err
	}

	sourceCount, err := s.rabbit.QueueMessageCount(ctx, cluster, vhost, source)
	if err != nil {
		sourceCount = -1 // best-effort; the move itself decides the outcome
	}

	moved := 0
	op := audit.Operation{
		Type:         domain.OpMoveMessagesQueue,
		ResourceType: domain.ResourceMessage,
		ResourceName: source + "->" + destination,
		Details: domain.JSONB{
			"vhost":           vhost,
			"source":          source,
			"destination":     destination,
			"requested_count": maxCount,
			"source_depth":    sourceCount,
		},
	}
	err = s.interceptor.Do(ctx, actorOf(principal), refOf(cluster), op, func() error {
		for moved < maxCount {
			batch := moveFetchBatch
			if remaining := maxCount - moved; remaining < batch {
				batch = remaining
			}
			messages, err := s.rabbit.GetMessages(ctx, cluster, vhost, source, batch)
			if err != nil {
				return fmt.Errorf("failed to fetch from %s after moving %d: %w", source, moved, err)
			}
			if len(messages) == 0 {
				break
			}
			for _, msg := range messages {
				if _, err := s.rabbit.Publish(ctx, cluster, vhost, "", destination, msg.Payload, msg.Properties); err != nil {
					return fmt.Errorf("failed to publish to %s after moving %d: %w", destination, moved, err)
				}
				moved++
			}
		}
		// Details map is shared with the deferred record build
		op.Details["moved_count"] = moved
		return nil
	})
	return moved, err
}
