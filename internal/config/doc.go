// Package config loads the deployment topology (storm.yml), provider
// credentials and operational timeouts.
//
// A topology file looks like:
//
//	discovery:
//	  aws:
//	    scale: 3
//	hosts:
//	  aws:
//	    - region: us-east-1
//	      scale: 2
//	    - region: eu-west-1
//	      scale: 2
//	  digitalocean:
//	    scale: 1
//	load_balancers: 2
//	certificate: s3://my-bucket/haproxy.pem
//	deploy:
//	  web:
//	    app: 4
//
// Every provider accepts either a single placement mapping or a sequence of
// placements. Defaults are filled in per provider and the result is validated
// once, before any task is built.
package config
