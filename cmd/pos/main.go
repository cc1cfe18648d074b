// Command pos is an interactive register: it drives the cart and checkout
// engines against a remote POS API.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/retailpoint/pos/internal/auth"
	"github.com/retailpoint/pos/internal/cart"
	"github.com/retailpoint/pos/internal/catalog"
	"github.com/retailpoint/pos/internal/checkout"
)

type Config struct {
	APIBaseURL string
	TokenFile  string
	RedisAddr  string
}

func loadConfig() *Config {
	return &Config{
		APIBaseURL: getEnv("POS_API_URL", "http://localhost:8080"),
		TokenFile:  getEnv("POS_TOKEN_FILE", auth.DefaultTokenPath()),
		RedisAddr:  getEnv("POS_REDIS_ADDR", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	tokens := auth.NewStore(auth.NewFileStorage(cfg.TokenFile), logger)
	client := auth.NewClient(cfg.APIBaseURL, tokens, nil, logger)

	var cache catalog.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		cache = catalog.NewRedisCache(redisClient)
		logger.Info("using shared redis catalog cache", zap.String("addr", cfg.RedisAddr))
	}

	gateway := catalog.NewGateway(client, cache, logger)
	engine := cart.NewEngine()
	coordinator := checkout.NewCoordinator(client, gateway, logger)

	r := &register{
		ctx:         ctx,
		client:      client,
		gateway:     gateway,
		engine:      engine,
		coordinator: coordinator,
	}
	r.run()
}

type register struct {
	ctx         context.Context
	client      *auth.Client
	gateway     *catalog.Gateway
	engine      *cart.Engine
	coordinator *checkout.Coordinator
}

func (r *register) run() {
	fmt.Println("retailpoint register - type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := r.dispatch(args); err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrSessionExpired) {
				fmt.Println("session expired, please log in again")
				continue
			}
			fmt.Println("error:", err)
		}
	}
}

func (r *register) dispatch(args []string) error {
	switch args[0] {
	case "help":
		printHelp()
		return nil
	case "login":
		return r.login(args[1:])
	case "logout":
		r.client.Logout()
		fmt.Println("logged out")
		return nil
	case "add":
		return r.add(args[1:])
	case "qty":
		return r.setQuantity(args[1:])
	case "rm":
		return r.remove(args[1:])
	case "refresh":
		return r.refreshProduct(args[1:])
	case "discount":
		return r.setRate(args[1:], r.engine.SetDiscountPercent)
	case "tax":
		return r.setRate(args[1:], r.engine.SetTaxPercent)
	case "show":
		r.show()
		return nil
	case "clear":
		r.engine.Clear()
		fmt.Println("cart cleared")
		return nil
	case "checkout":
		return r.checkout(args[1:])
	default:
		return fmt.Errorf("unknown command %q (try 'help')", args[0])
	}
}

func (r *register) login(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <username> <password>")
	}
	if err := r.client.Login(r.ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("logged in as", args[0])
	return nil
}

func (r *register) add(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: add <product-id> [qty]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad product id %q", args[0])
	}
	qty := 1
	if len(args) == 2 {
		if qty, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("bad quantity %q", args[1])
		}
	}

	product, err := r.gateway.FetchProduct(r.ctx, id)
	if err != nil {
		return err
	}
	if err := r.engine.AddItem(product, qty); err != nil {
		return err
	}
	fmt.Printf("added %s\n", product.Name)
	return nil
}

func (r *register) setQuantity(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: qty <product-id> <n>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad product id %q", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad quantity %q", args[1])
	}
	return r.engine.SetQuantity(id, n)
}

func (r *register) remove(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rm <product-id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad product id %q", args[0])
	}
	r.engine.RemoveItem(id)
	return nil
}

func (r *register) refreshProduct(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: refresh <product-id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad product id %q", args[0])
	}

	// Drop the cached snapshot so the fetch sees the server's current
	// price and stock. Lines already in the cart keep their add-time
	// snapshot.
	r.gateway.Invalidate(r.ctx, id)
	product, err := r.gateway.FetchProduct(r.ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s, %d in stock\n", product.Name, product.UnitPrice.StringFixed(2), product.AvailableStock)
	return nil
}

func (r *register) setRate(args []string, set func(decimal.Decimal) error) error {
	if len(args) != 1 {
		return errors.New("usage: discount|tax <percent>")
	}
	p, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("bad percentage %q", args[0])
	}
	return set(p)
}

func (r *register) show() {
	if r.engine.IsEmpty() {
		fmt.Println("cart is empty")
		return
	}
	for _, l := range r.engine.Lines() {
		fmt.Printf("  %-30s x%-3d @ %8s = %8s\n",
			l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Total().StringFixed(2))
	}
	t := r.engine.Totals()
	fmt.Printf("  subtotal %s  discount %s  tax %s  total %s\n",
		t.Subtotal.StringFixed(2), t.DiscountAmount.StringFixed(2),
		t.TaxAmount.StringFixed(2), t.GrandTotal.StringFixed(2))
}

func (r *register) checkout(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: checkout <payment-method> <customer...>")
	}
	payment := args[0]
	customer := strings.Join(args[1:], " ")

	receipt, err := r.coordinator.Checkout(r.ctx, r.engine, payment, customer)
	if err != nil {
		if errors.Is(err, checkout.ErrCheckoutFailed) {
			// Cart is intact; the user decides whether to retry.
			return fmt.Errorf("%w (cart preserved, retry with 'checkout')", err)
		}
		return err
	}
	r.engine.Clear()

	fmt.Printf("receipt %s  %s\n", receipt.ID, receipt.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("customer: %s  payment: %s\n", receipt.CustomerLabel, receipt.PaymentMethod)
	for _, l := range receipt.Lines {
		fmt.Printf("  %-30s x%-3d @ %8s = %8s\n",
			l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Total.StringFixed(2))
	}
	t := receipt.Totals
	fmt.Printf("  subtotal %s  discount %s  tax %s  total %s\n",
		t.Subtotal.StringFixed(2), t.DiscountAmount.StringFixed(2),
		t.TaxAmount.StringFixed(2), t.GrandTotal.StringFixed(2))
	return nil
}

func printHelp() {
	fmt.Print(`commands:
  login <username> <password>         log in
  logout                              clear the session
  add <product-id> [qty]              add a product to the cart
  qty <product-id> <n>                set a line's quantity (0 removes)
  rm <product-id>                     remove a line
  refresh <product-id>                re-fetch a product's price and stock
  discount <percent>                  set cart discount [0,100]
  tax <percent>                       set tax rate
  show                                print cart and totals
  checkout <payment> <customer...>    submit the sale
  clear                               empty the cart
  quit                                exit
`)
}
