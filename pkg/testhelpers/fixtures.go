package testhelpers

// The shop fixture: five base tables, one view, deterministic rows.
// orders is sampled by created_at, users by created_at, products by id, and
// order_items / events by id.

// PostgresFixture creates and fills the shop schema in "public".
var PostgresFixture = []string{
	`CREATE TABLE users (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE products (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC(10,2) NOT NULL,
		category TEXT
	)`,
	`CREATE TABLE orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES users(id),
		status TEXT,
		total NUMERIC(10,2),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER REFERENCES orders(id),
		product_id INTEGER REFERENCES products(id),
		quantity INTEGER NOT NULL
	)`,
	`CREATE TABLE events (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES users(id),
		event_type TEXT NOT NULL,
		event_time TIMESTAMP NOT NULL
	)`,
	`CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100`,
	`INSERT INTO users (name, email, created_at) VALUES
		('Ada', 'ada@example.com', '2024-01-01 09:00:00'),
		('Grace', 'grace@example.com', '2024-01-02 09:00:00'),
		('Linus', NULL, '2024-01-03 09:00:00')`,
	`INSERT INTO products (name, price, category) VALUES
		('Widget', 9.99, 'tools'),
		('Gadget', 19.99, 'tools'),
		('Book', 12.50, NULL)`,
	`INSERT INTO orders (user_id, status, total, created_at) VALUES
		(1, 'shipped', 29.98, '2024-02-01 10:00:00'),
		(2, 'shipped', 12.50, '2024-02-02 10:00:00'),
		(1, 'pending', NULL, '2024-02-03 10:00:00')`,
	`INSERT INTO order_items (order_id, product_id, quantity) VALUES
		(1, 1, 1), (1, 2, 1), (2, 3, 1), (3, 1, 4)`,
	`INSERT INTO events (user_id, event_type, event_time) VALUES
		(1, 'login', '2024-02-01 08:00:00'),
		(1, 'purchase', '2024-02-01 10:00:00'),
		(2, 'login', '2024-02-02 08:00:00')`,
}

// MySQLFixture mirrors PostgresFixture for MySQL.
var MySQLFixture = []string{
	`CREATE TABLE users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		email VARCHAR(255) UNIQUE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE products (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		price DECIMAL(10,2) NOT NULL,
		category VARCHAR(50)
	)`,
	`CREATE TABLE orders (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT,
		status VARCHAR(20),
		total DECIMAL(10,2),
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`,
	`CREATE TABLE order_items (
		id INT AUTO_INCREMENT PRIMARY KEY,
		order_id INT,
		product_id INT,
		quantity INT NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id),
		FOREIGN KEY (product_id) REFERENCES products(id)
	)`,
	`CREATE TABLE events (
		id INT AUTO_INCREMENT PRIMARY KEY,
		user_id INT,
		event_type VARCHAR(50) NOT NULL,
		event_time DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`,
	`CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100`,
	`INSERT INTO users (name, email, created_at) VALUES
		('Ada', 'ada@example.com', '2024-01-01 09:00:00'),
		('Grace', 'grace@example.com', '2024-01-02 09:00:00'),
		('Linus', NULL, '2024-01-03 09:00:00')`,
	`INSERT INTO products (name, price, category) VALUES
		('Widget', 9.99, 'tools'),
		('Gadget', 19.99, 'tools'),
		('Book', 12.50, NULL)`,
	`INSERT INTO orders (user_id, status, total, created_at) VALUES
		(1, 'shipped', 29.98, '2024-02-01 10:00:00'),
		(2, 'shipped', 12.50, '2024-02-02 10:00:00'),
		(1, 'pending', NULL, '2024-02-03 10:00:00')`,
	`INSERT INTO order_items (order_id, product_id, quantity) VALUES
		(1, 1, 1), (1, 2, 1), (2, 3, 1), (3, 1, 4)`,
	`INSERT INTO events (user_id, event_type, event_time) VALUES
		(1, 'login', '2024-02-01 08:00:00'),
		(1, 'purchase', '2024-02-01 10:00:00'),
		(2, 'login', '2024-02-02 08:00:00')`,
}
