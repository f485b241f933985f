package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	redisAddr     = "localhost:6379"
	skuID         = "stress-sku"
	location      = "main"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	ledger := storage.NewMySQLAdapter(db)
	if err := ledger.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	cache := storage.NewRedisAdapter(rdb, time.Minute)

	// Every run gets its own tenant so earlier runs never interfere.
	tenantID := "stress-" + uuid.NewString()[:8]
	opts := service.Options{MaxAttempts: 10, RetryBackoff: 2 * time.Millisecond}

	_, err = service.NewAdjustmentService(ledger, opts).Adjust(ctx, domain.Adjustment{
		TenantID:      tenantID,
		SkuID:         skuID,
		Location:      location,
		QuantityDelta: initialStock,
		Reason:        domain.ReasonReceiving,
		ActingUserID:  "stress-test",
	})
	if err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	allocations := service.NewAllocationService(ledger, ledger, cache, opts)

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(orderNo int) {
			defer wg.Done()

			_, err := allocations.Allocate(ctx, domain.AllocationRequest{
				TenantID:     tenantID,
				OrderID:      fmt.Sprintf("order-%d", orderNo),
				Location:     location,
				Lines:        []domain.OrderLine{{SkuID: skuID, Quantity: 1}},
				ActingUserID: "stress-test",
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Tenant:           %s\n", tenantID)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d allocations succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	rec, err := ledger.GetRecord(ctx, domain.RecordKey{TenantID: tenantID, SkuID: skuID, Location: location})
	if err != nil || rec == nil {
		log.Fatalf("failed to read record: %v", err)
	}
	fmt.Printf("Final On Hand:    %d\n", rec.OnHand)
	fmt.Printf("Final Allocated:  %d\n", rec.Allocated)

	if rec.Allocated > rec.OnHand {
		fmt.Printf("FAIL: Oversold by %d\n", rec.Allocated-rec.OnHand)
	} else if rec.Available() == 0 {
		fmt.Println("PASS: Available stock depleted to 0 without oversell")
	} else {
		fmt.Printf("FAIL: Expected available 0, got %d\n", rec.Available())
	}
}
