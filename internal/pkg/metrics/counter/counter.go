// Package counter buffers hot product counters in Redis and flushes them to the
// database in batches.
package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const productDownloadsKey = "product:counters:downloads"

// Counter accumulates product download counts.
type Counter struct {
	rdb    *redis.Client
	db     *gorm.DB
	prefix string
}

// New creates a counter. prefix namespaces the Redis keys.
func New(rdb *redis.Client, db *gorm.DB, prefix string) *Counter {
	return &Counter{rdb: rdb, db: db, prefix: strings.TrimSpace(prefix)}
}

func (c *Counter) key() string {
	if c.prefix == "" {
		return productDownloadsKey
	}
	return c.prefix + ":" + productDownloadsKey
}

// AddProductDownload increments the pending download counter for a product.
func (c *Counter) AddProductDownload(ctx context.Context, productID uint) error {
	if c.rdb == nil {
		return c.applyIncrements(ctx, []pair{{id: uint64(productID), inc: 1}})
	}
	field := strconv.FormatUint(uint64(productID), 10)
	return c.rdb.HIncrBy(ctx, c.key(), field, 1).Err()
}

// Flush drains the Redis hash and applies the increments to products.download_count.
// The hash is renamed before reading so increments that arrive during the
// flush land in a fresh hash.
func (c *Counter) Flush(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}

	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key(), time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, c.key(), tmpKey).Err(); err != nil {
		if err == redis.Nil || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer c.rdb.Del(ctx, tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	return c.applyIncrements(ctx, parsePairs(data))
}

type pair struct {
	id  uint64
	inc int64
}

func parsePairs(data map[string]string) []pair {
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	return pairs
}

// applyIncrements issues one
// UPDATE products SET download_count = download_count + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
func (c *Counter) applyIncrements(ctx context.Context, pairs []pair) error {
	if len(pairs) == 0 {
		return nil
	}

	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE products SET download_count = download_count + CASE id")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" ELSE 0 END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")

	return c.db.WithContext(ctx).Exec(builder.String(), args...).Error
}
