// Package main is the entry point for awsapigw.
//
//	@title						awsapigw - API Gateway Key Provisioning
//	@version					1.0
//	@description				Provisions, suspends and revokes AWS API Gateway keys for billing platform services.
//
//	@contact.name				awsapigw Support
//	@contact.url				https://github.com/artpar/awsapigw/issues
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication (format: "Bearer {token}")
package main

func main() {
	Execute()
}
